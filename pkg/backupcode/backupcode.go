// Package backupcode manages single-use two-factor recovery codes.
package backupcode

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"
)

const (
	DefaultCount = 8
	// LowThreshold is the remaining count at or below which users should regenerate.
	LowThreshold = 3
	codeBytes    = 4
)

// Generate returns count codes of 8 upper-case hex characters.
func Generate(count int) ([]string, error) {
	codes := make([]string, count)
	b := make([]byte, codeBytes)
	for i := range codes {
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		codes[i] = strings.ToUpper(hex.EncodeToString(b))
	}
	return codes, nil
}

// Normalize strips all whitespace and upper-cases s.
func Normalize(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

// Serialize encodes codes as a JSON array.
func Serialize(codes []string) string {
	if codes == nil {
		codes = []string{}
	}
	b, _ := json.Marshal(codes)
	return string(b)
}

// Deserialize decodes a stored set. Empty or malformed input yields an empty set.
func Deserialize(s string) []string {
	var codes []string
	if err := json.Unmarshal([]byte(s), &codes); err != nil || codes == nil {
		return []string{}
	}
	return codes
}

// Verify reports whether submitted matches a code in codes.
func Verify(codes []string, submitted string) bool {
	return indexOf(codes, submitted) >= 0
}

// Consume removes the single entry matching used. Unknown input returns codes unchanged.
func Consume(codes []string, used string) []string {
	i := indexOf(codes, used)
	if i < 0 {
		return codes
	}
	out := make([]string, 0, len(codes)-1)
	out = append(out, codes[:i]...)
	return append(out, codes[i+1:]...)
}

// ShouldRegenerate reports whether the pool has shrunk to threshold or fewer codes.
func ShouldRegenerate(codes []string, threshold int) bool {
	return len(codes) <= threshold
}

func indexOf(codes []string, submitted string) int {
	n := Normalize(submitted)
	if n == "" {
		return -1
	}
	for i, c := range codes {
		if Normalize(c) == n {
			return i
		}
	}
	return -1
}
