// Package random produces opaque identifiers for authorization codes and tokens.
package random

import (
	"crypto/rand"
	"fmt"
)

// Alphanumeric is the alphabet of every generated value.
const Alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Default value lengths.
const (
	DefaultCodeLength  = 6
	DefaultTokenLength = 32
)

// maxUnbiased is the largest multiple of len(Alphanumeric) that fits in a byte.
// Bytes at or above it are rejected so every symbol is equally likely.
const maxUnbiased = 256 - 256%len(Alphanumeric)

// Generator draws fixed-length values from a cryptographically secure source.
type Generator struct {
	length int
}

// New returns a Generator for values of the given length.
// A non-positive length falls back to DefaultTokenLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultTokenLength
	}
	return &Generator{length: length}
}

// Length returns the number of symbols in each generated value.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new random value. It panics if the system entropy
// source fails, since no code or token can be issued safely without it.
func (g *Generator) Generate() string {
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)

	for len(out) < g.length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Errorf("random: entropy source failed: %w", err))
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, Alphanumeric[int(b)%len(Alphanumeric)])
			if len(out) == g.length {
				break
			}
		}
	}

	return string(out)
}
