package clips

import (
	"crypto/rand"
	"fmt"
)

const (
	hashAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// HashLength is the number of characters in a generated video hash.
	HashLength = 24
)

// NewVideoHash returns a random share token of HashLength characters drawn
// from [a-z0-9]. Tokens always contain a letter so they never parse as ids.
func NewVideoHash() (string, error) {
	// 252 is the largest multiple of 36 that fits in a byte.
	const cutoff = 252

	out := make([]byte, 0, HashLength)
	buf := make([]byte, HashLength*2)
	for {
		out = out[:0]
		hasLetter := false
		for len(out) < HashLength {
			if _, err := rand.Read(buf); err != nil {
				return "", fmt.Errorf("read random bytes: %w", err)
			}
			for _, b := range buf {
				if b >= cutoff {
					continue
				}
				c := hashAlphabet[int(b)%len(hashAlphabet)]
				if c >= 'a' {
					hasLetter = true
				}
				out = append(out, c)
				if len(out) == HashLength {
					break
				}
			}
		}
		if hasLetter {
			return string(out), nil
		}
	}
}
