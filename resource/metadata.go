// Package resource maps request paths to the authorities required to access
// them. The mapping is loaded from a domain.ResourceDirectory and rebuilt
// whenever a resource change is committed.
package resource

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.pilab.hu/authcore/domain"
	"go.pilab.hu/authcore/internal/metrics"
	"go.pilab.hu/authcore/log"
)

type entry struct {
	id          string
	pattern     pattern
	method      string
	authorities []string
}

func (e entry) matchesMethod(method string) bool {
	switch e.method {
	case "", "*", domain.MethodAll:
		return true
	default:
		return strings.EqualFold(e.method, method)
	}
}

// snapshot is immutable once published.
type snapshot struct {
	entries  []entry
	loadedAt time.Time
}

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	// Required lists the authorities of the matching resources. It is empty
	// when no resource matched.
	Required []string
}

// MetadataSource serves the required authorities for a request. Reads go
// through an atomically swapped snapshot and never block on a reload.
type MetadataSource struct {
	dir     domain.ResourceDirectory
	current atomic.Pointer[snapshot]
	mu      sync.Mutex // serializes Reload

	logger  log.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a MetadataSource.
type Option func(*MetadataSource)

func WithLogger(logger log.Logger) Option {
	return func(s *MetadataSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *MetadataSource) {
		s.metrics = m
	}
}

// NewMetadataSource performs the initial load and fails if it fails.
func NewMetadataSource(ctx context.Context, dir domain.ResourceDirectory, opts ...Option) (*MetadataSource, error) {
	s := &MetadataSource{
		dir:    dir,
		logger: log.Nop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial secured resource load: %w", err)
	}

	return s, nil
}

// Reload rebuilds the snapshot from the directory and publishes it. On
// failure the previous snapshot stays in place.
func (s *MetadataSource) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resources, err := s.dir.ListResources(ctx)
	if err != nil {
		s.metrics.MetadataReloaded(false, 0)
		return fmt.Errorf("failed to list secured resources: %w", err)
	}

	next := &snapshot{
		entries:  make([]entry, 0, len(resources)),
		loadedAt: s.now(),
	}

	for _, r := range resources {
		p, err := compilePattern(r.Pattern)
		if err != nil {
			s.logger.Warn(ctx, "skipping secured resource with invalid pattern", log.Fields{
				"resource_id": r.ID,
				"pattern":     r.Pattern,
			})
			continue
		}

		next.entries = append(next.entries, entry{
			id:          r.ID,
			pattern:     p,
			method:      r.Method,
			authorities: slices.Clone(r.Authorities),
		})
	}

	s.current.Store(next)
	s.metrics.MetadataReloaded(true, len(next.entries))
	s.logger.Info(ctx, "secured resource metadata loaded", log.Fields{"entries": len(next.entries)})

	return nil
}

// AttributesFor returns the sorted union of authorities required by every
// resource matching method and path, or nil if none match.
func (s *MetadataSource) AttributesFor(method, requestPath string) []string {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}

	var out []string
	for _, e := range snap.entries {
		if e.matchesMethod(method) && e.pattern.match(requestPath) {
			out = append(out, e.authorities...)
		}
	}

	if len(out) == 0 {
		return nil
	}

	slices.Sort(out)
	return slices.Compact(out)
}

// AttributesForRequest is AttributesFor for an HTTP request.
func (s *MetadataSource) AttributesForRequest(r *http.Request) []string {
	return s.AttributesFor(r.Method, r.URL.Path)
}

// Decide grants access when no resource matches the request or when granted
// holds at least one required authority.
func (s *MetadataSource) Decide(method, requestPath string, granted []string) Decision {
	required := s.AttributesFor(method, requestPath)
	if len(required) == 0 {
		return Decision{Allowed: true}
	}

	for _, g := range granted {
		if _, found := slices.BinarySearch(required, g); found {
			return Decision{Allowed: true, Required: required}
		}
	}

	return Decision{Allowed: false, Required: required}
}

// Len returns the number of entries in the active snapshot.
func (s *MetadataSource) Len() int {
	if snap := s.current.Load(); snap != nil {
		return len(snap.entries)
	}
	return 0
}

// LoadedAt returns when the active snapshot was built.
func (s *MetadataSource) LoadedAt() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}
