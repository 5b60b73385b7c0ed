// Package bingo holds music bingo board layout, join codes and QR rendering.
package bingo

import (
	"errors"
	"hash/fnv"
	"math/rand/v2"
)

const (
	// Size is the edge length of a board.
	Size = 5
	// SongsPerBoard is the number of song cells on a board; the centre is free.
	SongsPerBoard = Size*Size - 1
	// FreeCell marks the centre square in a layout.
	FreeCell = -1
)

// ErrNotEnoughSongs indicates a playlist is too short to fill a board.
var ErrNotEnoughSongs = errors.New("bingo: playlist needs at least 24 songs")

// Seed derives the board seed for a player in a game.
func Seed(gameID, playerID string) string {
	return gameID + ":" + playerID
}

// BuildBoard lays out a 5x5 board from a playlist of songCount songs. Each
// cell holds a song index, except the centre which holds FreeCell. The 24
// indices are distinct and chosen by a shuffle seeded from seed, so the same
// seed always yields the same board.
func BuildBoard(songCount int, seed string) ([][]int, error) {
	if songCount < SongsPerBoard {
		return nil, ErrNotEnoughSongs
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	rng := rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))

	picks := rng.Perm(songCount)[:SongsPerBoard]

	board := make([][]int, Size)
	next := 0
	for r := range board {
		board[r] = make([]int, Size)
		for c := range board[r] {
			if r == Size/2 && c == Size/2 {
				board[r][c] = FreeCell
				continue
			}
			board[r][c] = picks[next]
			next++
		}
	}
	return board, nil
}
