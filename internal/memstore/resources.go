package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
)

// ResourceDirectory is an in-memory domain.ResourceDirectory with
// transactional updates. Change events are published only after a
// transaction commits.
type ResourceDirectory struct {
	mu        sync.Mutex
	resources map[string]domain.SecuredResource
	publisher domain.EventPublisher
	logger    log.Logger
	now       func() time.Time
}

var _ domain.ResourceDirectory = (*ResourceDirectory)(nil)

// NewResourceDirectory creates a directory seeded with initial. publisher may
// be nil, in which case no events are sent.
func NewResourceDirectory(publisher domain.EventPublisher, logger log.Logger,
	initial ...domain.SecuredResource,
) *ResourceDirectory {
	if logger == nil {
		logger = log.Nop()
	}

	d := &ResourceDirectory{
		resources: make(map[string]domain.SecuredResource, len(initial)),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}

	for _, r := range initial {
		d.resources[r.ID] = cloneResource(r)
	}

	return d
}

// ListResources returns every resource ordered by id.
func (d *ResourceDirectory) ListResources(_ context.Context) ([]domain.SecuredResource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.SecuredResource, 0, len(d.resources))
	for _, id := range slices.Sorted(maps.Keys(d.resources)) {
		out = append(out, cloneResource(d.resources[id]))
	}

	return out, nil
}

// Tx stages resource changes inside Update.
type Tx struct {
	staged  map[string]domain.SecuredResource
	changes []domain.ResourceChanged
}

// Save stages an insert or replace.
func (tx *Tx) Save(r domain.SecuredResource) error {
	if r.ID == "" {
		return fmt.Errorf("%w: secured resource id is required", serrors.ErrInvalidRequest)
	}

	tx.staged[r.ID] = cloneResource(r)
	tx.changes = append(tx.changes, domain.ResourceChanged{ResourceID: r.ID, Op: domain.ResourceSaved})

	return nil
}

// Delete stages a removal.
func (tx *Tx) Delete(id string) error {
	if _, ok := tx.staged[id]; !ok {
		return serrors.ErrNotFound
	}

	delete(tx.staged, id)
	tx.changes = append(tx.changes, domain.ResourceChanged{ResourceID: id, Op: domain.ResourceDeleted})

	return nil
}

// Update runs fn against a staged copy and commits it if fn succeeds. If fn
// fails nothing changes and nothing is published. Events go out after the
// commit; a publish failure does not undo it.
func (d *ResourceDirectory) Update(ctx context.Context, fn func(tx *Tx) error) error {
	d.mu.Lock()
	tx := &Tx{staged: maps.Clone(d.resources)}
	if err := fn(tx); err != nil {
		d.mu.Unlock()
		return err
	}

	d.resources = tx.staged
	committedAt := d.now()
	d.mu.Unlock()

	if d.publisher == nil {
		return nil
	}

	var errs []error
	for _, evt := range tx.changes {
		evt.CommittedAt = committedAt
		if err := d.publisher.Publish(ctx, evt); err != nil {
			d.logger.Error(ctx, "failed to publish resource change", err, log.Fields{"resource_id": evt.ResourceID})
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("resource change committed but not published: %w", errors.Join(errs...))
	}

	return nil
}

// Save commits a single insert or replace.
func (d *ResourceDirectory) Save(ctx context.Context, r domain.SecuredResource) error {
	return d.Update(ctx, func(tx *Tx) error { return tx.Save(r) })
}

// Delete commits a single removal.
func (d *ResourceDirectory) Delete(ctx context.Context, id string) error {
	return d.Update(ctx, func(tx *Tx) error { return tx.Delete(id) })
}

func cloneResource(r domain.SecuredResource) domain.SecuredResource {
	r.Authorities = slices.Clone(r.Authorities)
	return r
}
