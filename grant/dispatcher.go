package grant

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/internal/metrics"
	"go.pilab.hu/authcore/log"
)

const tracerName = "go.pilab.hu/authcore/grant"

// Dispatcher routes token requests to the issuer registered for their grant
// type. The table is fixed at construction.
type Dispatcher struct {
	issuers map[domain.GrantType]Issuer
	tracer  trace.Tracer
	logger  log.Logger
	metrics *metrics.Metrics
}

// NewDispatcher builds the dispatch table. Registering two issuers for the
// same grant type is an error.
func NewDispatcher(issuers ...Issuer) (*Dispatcher, error) {
	table := make(map[domain.GrantType]Issuer, len(issuers))
	for _, issuer := range issuers {
		if issuer == nil {
			return nil, errors.New("nil issuer")
		}

		gt := issuer.GrantType()
		if _, dup := table[gt]; dup {
			return nil, fmt.Errorf("duplicate issuer for grant type %q", gt)
		}
		table[gt] = issuer
	}

	return &Dispatcher{
		issuers: table,
		tracer:  otel.Tracer(tracerName),
		logger:  log.Nop(),
	}, nil
}

// WithLogger returns a copy of d that logs to logger.
func (d *Dispatcher) WithLogger(logger log.Logger) *Dispatcher {
	cp := *d
	cp.logger = logger
	return &cp
}

// WithMetrics returns a copy of d that records to m.
func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	cp := *d
	cp.metrics = m
	return &cp
}

// GrantTypes returns the registered grant types in sorted order.
func (d *Dispatcher) GrantTypes() []domain.GrantType {
	return slices.Sorted(maps.Keys(d.issuers))
}

// Dispatch issues tokens for req through the issuer registered for grantType.
func (d *Dispatcher) Dispatch(ctx context.Context, grantType domain.GrantType, c *domain.Client,
	req *domain.TokenRequest,
) (*domain.TokenResponse, error) {
	ctx, span := d.tracer.Start(ctx, "grant.Dispatch", trace.WithAttributes(
		attribute.String("oauth.grant_type", string(grantType)),
		attribute.String("oauth.client_id", c.ID),
	))
	defer span.End()

	issuer, ok := d.issuers[grantType]
	if !ok {
		err := fmt.Errorf("%w: %q", serrors.ErrUnsupportedGrantType, grantType)
		d.fail(ctx, span, grantType, err)
		return nil, err
	}

	res, err := issuer.Issue(ctx, c, req)
	if err != nil {
		d.fail(ctx, span, grantType, err)
		return nil, err
	}

	d.metrics.TokenIssued(string(grantType), domain.TokenTypeAccessToken)
	if res.Refresh != nil {
		d.metrics.TokenIssued(string(grantType), domain.TokenTypeRefreshToken)
	}

	d.logger.Debug(ctx, "token issued", log.Fields{
		"grant_type": grantType,
		"client_id":  c.ID,
		"token_id":   res.Access.ID,
	})

	return toResponse(res), nil
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, grantType domain.GrantType, err error) {
	reason := serrors.FromError(err).Code

	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	d.metrics.GrantFailed(string(grantType), reason)

	if reason == serrors.ServerError {
		d.logger.Error(ctx, "token request failed", err, log.Fields{"grant_type": grantType})
		return
	}

	d.logger.Info(ctx, "token request rejected", log.Fields{
		"grant_type": grantType,
		"reason":     reason,
	})
}

func toResponse(res *Result) *domain.TokenResponse {
	access := res.Access
	// ExpiresAt is whole seconds; IssuedAt is not.
	lifetime := access.ExpiresAt.Sub(access.IssuedAt.Truncate(time.Second))
	resp := &domain.TokenResponse{
		AccessToken: access.Value,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   int(lifetime / time.Second),
		Scope:       JoinScopes(access.Scopes),
		Extra:       maps.Clone(access.Claims),
	}

	if res.Refresh != nil {
		resp.RefreshToken = res.Refresh.Value
	}

	return resp
}
