package auth

import (
	"fmt"

	"go.pilab.hu/authcore/domain"
	"golang.org/x/crypto/bcrypt"
)

var _ domain.SecretVerifier = (*BcryptPasswordHasher)(nil)

// BcryptPasswordHasher encodes client secrets and user passwords with bcrypt
// and verifies them. It is the default domain.SecretVerifier.
type BcryptPasswordHasher struct {
	cost int
}

// NewBcryptPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost
// when cost is not positive.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost: cost}
}

// Cost returns the work factor new hashes are created with.
func (h *BcryptPasswordHasher) Cost() int {
	return h.cost
}

// Hash encodes secret. Secrets longer than 72 bytes are rejected.
func (h *BcryptPasswordHasher) Hash(secret string) (string, error) {
	encoded, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(encoded), nil
}

// Matches reports whether raw matches the bcrypt encoding. A malformed
// encoding never matches.
func (h *BcryptPasswordHasher) Matches(raw, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw)) == nil
}

// NeedsRehash reports whether encoded was created with a lower cost than the
// hasher's, or is not a bcrypt hash at all.
func (h *BcryptPasswordHasher) NeedsRehash(encoded string) bool {
	cost, err := bcrypt.Cost([]byte(encoded))
	return err != nil || cost < h.cost
}
