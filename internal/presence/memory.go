// Package presence tracks which bingo players sent a heartbeat recently.
package presence

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local tracker for single-instance deployments.
type Memory struct {
	mu    sync.Mutex
	games map[string]map[string]time.Time
}

// NewMemory returns an empty tracker.
func NewMemory() *Memory {
	return &Memory{games: make(map[string]map[string]time.Time)}
}

// Touch records a heartbeat.
func (m *Memory) Touch(ctx context.Context, gameID, playerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	players, ok := m.games[gameID]
	if !ok {
		players = make(map[string]time.Time)
		m.games[gameID] = players
	}
	if prev, ok := players[playerID]; !ok || at.After(prev) {
		players[playerID] = at
	}
	return nil
}

// CountActive counts players seen at or after since.
func (m *Memory) CountActive(ctx context.Context, gameID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, seen := range m.games[gameID] {
		if !seen.Before(since) {
			count++
		}
	}
	return count, nil
}

// Prune forgets players last seen before before.
func (m *Memory) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for gameID, players := range m.games {
		for playerID, seen := range players {
			if seen.Before(before) {
				delete(players, playerID)
				removed++
			}
		}
		if len(players) == 0 {
			delete(m.games, gameID)
		}
	}
	return removed, nil
}
