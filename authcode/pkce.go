package authcode

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// normalizeChallengeMethod defaults an empty method to plain when a challenge
// is present and rejects unknown methods.
func normalizeChallengeMethod(challenge, method string) (string, error) {
	if challenge == "" {
		return "", nil
	}

	switch method {
	case "":
		return domain.CodeChallengePlain, nil
	case domain.CodeChallengePlain, domain.CodeChallengeS256:
		return method, nil
	default:
		return "", fmt.Errorf("%w: unsupported code_challenge_method %q", serrors.ErrInvalidRequest, method)
	}
}

// S256Challenge derives the S256 code challenge for a verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyChallenge validates a code verifier against a code challenge.
func VerifyChallenge(challenge, method, verifier string) bool {
	if verifier == "" {
		return false
	}

	var calculated string
	switch method {
	case domain.CodeChallengeS256:
		calculated = S256Challenge(verifier)
	case domain.CodeChallengePlain, "":
		calculated = verifier
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(challenge), []byte(calculated)) == 1
}
