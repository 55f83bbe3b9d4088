// Package audit records security-relevant outcomes as JSON lines.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Audited actions.
const (
	ActionCodeIssued   = "authorization_code.issued"
	ActionTokenIssued  = "token.issued"
	ActionTokenDenied  = "token.denied"
	ActionTokenRevoked = "token.revoked"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ClientID  string    `json:"client_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	GrantType string    `json:"grant_type,omitempty"`
	Target    string    `json:"target,omitempty"` // Fingerprint of the code or token
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Recorder writes audit events. A nil Recorder discards them.
type Recorder struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New returns a Recorder writing to w.
func New(w io.Writer) *Recorder {
	return &Recorder{
		logger: zerolog.New(w),
		now:    time.Now,
	}
}

// Record writes evt, stamping it with the current time and the trace id of
// ctx when one is active.
func (r *Recorder) Record(ctx context.Context, evt Event) {
	if r == nil {
		return
	}

	evt.Timestamp = r.now().UTC()

	entry, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error().Err(err).Str("action", evt.Action).Msg("failed to marshal audit event")
		return
	}

	e := r.logger.Log().RawJSON("audit_event", entry)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e = e.Str("trace_id", sc.TraceID().String())
	}
	e.Msg("")
}
