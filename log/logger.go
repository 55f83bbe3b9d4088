package log

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Fields are structured key/value pairs attached to a log line.
type Fields map[string]any

// Logger defines a standard interface for logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields) // Exits the process
	With(fields Fields) Logger                                         // Returns a new logger with added structured fields
}

// Fingerprint returns a short, non-reversible identifier for a secret value
// such as an authorization code or token, safe to put in logs.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}
