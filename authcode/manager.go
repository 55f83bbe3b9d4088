// Package authcode implements the authorization code lifecycle: issuance,
// single-use consumption and validation against the token request.
package authcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/internal/metrics"
	"go.pilab.hu/authcore/internal/random"
	"go.pilab.hu/authcore/log"
)

const (
	// DefaultTTL is the lifetime of an issued code.
	DefaultTTL = time.Minute

	maxIssueAttempts = 5
)

// Manager issues, consumes and validates authorization codes.
type Manager struct {
	store   domain.AuthCodeStore
	gen     *random.Generator
	ttl     time.Duration
	now     func() time.Time
	logger  log.Logger
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithGenerator sets the code value generator.
func WithGenerator(gen *random.Generator) Option {
	return func(m *Manager) {
		if gen != nil {
			m.gen = gen
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager backed by store.
func NewManager(store domain.AuthCodeStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		gen:    random.New(random.DefaultCodeLength),
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: log.Nop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// TTL returns the configured code lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates and stores a code for an approved authorization request.
// A value collision in the store is retried with a fresh value.
func (m *Manager) Issue(ctx context.Context, req domain.PendingAuthorization) (*domain.AuthCode, error) {
	method, err := normalizeChallengeMethod(req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}

	now := m.now()
	code := &domain.AuthCode{
		ClientID:            req.ClientID,
		Subject:             req.Subject,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Scopes:              append([]string(nil), req.Scopes...),
		ExpiresAt:           now.Add(m.ttl),
		CreatedAt:           now,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		code.Code = m.gen.Generate()

		err := m.store.PutCode(ctx, code, m.ttl)
		if err == nil {
			m.metrics.CodeOutcome(metrics.CodeIssued)
			m.logger.Debug(ctx, "authorization code issued", log.Fields{
				"client_id": code.ClientID,
				"code":      log.Fingerprint(code.Code),
			})

			return code, nil
		}

		if !errors.Is(err, serrors.ErrCodeExists) {
			return nil, fmt.Errorf("failed to store authorization code: %w", err)
		}

		m.logger.Warn(ctx, "authorization code collision, regenerating", log.Fields{"attempt": attempt})
	}

	return nil, fmt.Errorf("failed to issue authorization code after %d attempts: %w",
		maxIssueAttempts, serrors.ErrCodeExists)
}

// Consume removes the code from the store and returns it. Of two concurrent
// calls for the same code at most one succeeds; the other gets ErrNotFound.
func (m *Manager) Consume(ctx context.Context, code string) (*domain.AuthCode, error) {
	record, err := m.store.ConsumeCode(ctx, code)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			m.metrics.CodeOutcome(metrics.CodeNotFound)
		}

		return nil, err
	}

	return record, nil
}

// Validate checks a consumed code against the token request.
func (m *Manager) Validate(record *domain.AuthCode, exchange domain.CodeExchange) error {
	if m.now().After(record.ExpiresAt) {
		m.metrics.CodeOutcome(metrics.CodeExpired)
		return serrors.ErrExpired
	}

	if record.RedirectURI != exchange.RedirectURI {
		m.metrics.CodeOutcome(metrics.CodeRedirectMismatch)
		return serrors.ErrRedirectMismatch
	}

	if record.ClientID != exchange.ClientID {
		m.metrics.CodeOutcome(metrics.CodeClientMismatch)
		return serrors.ErrClientMismatch
	}

	if record.CodeChallenge != "" &&
		!VerifyChallenge(record.CodeChallenge, record.CodeChallengeMethod, exchange.CodeVerifier) {
		m.metrics.CodeOutcome(metrics.CodeInvalidPKCE)
		return serrors.ErrInvalidPKCE
	}

	return nil
}

// Redeem consumes the code and validates it. The code is gone afterwards
// whether or not validation succeeds.
func (m *Manager) Redeem(ctx context.Context, code string, exchange domain.CodeExchange) (*domain.AuthCode, error) {
	record, err := m.Consume(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := m.Validate(record, exchange); err != nil {
		m.logger.Info(ctx, "authorization code rejected", log.Fields{
			"client_id": exchange.ClientID,
			"code":      log.Fingerprint(code),
			"reason":    err.Error(),
		})

		return nil, err
	}

	m.metrics.CodeOutcome(metrics.CodeRedeemed)

	return record, nil
}
