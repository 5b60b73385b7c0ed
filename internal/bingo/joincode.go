package bingo

import (
	"crypto/rand"
	"strings"
)

// JoinCodeLength is the number of characters in a join code.
const JoinCodeLength = 6

// joinAlphabet omits 0, O, 1 and I, which players misread off a screen.
const joinAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewJoinCode returns a random join code.
func NewJoinCode() string {
	buf := make([]byte, JoinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = joinAlphabet[int(b)%len(joinAlphabet)]
	}
	return string(buf)
}

// NormalizeJoinCode trims and upper-cases a code typed by a player.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code has the join code shape: six upper-case
// letters or digits.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
