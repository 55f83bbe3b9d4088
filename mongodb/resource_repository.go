package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/log"
)

// ResourceRepository stores secured resources in MongoDB. Writes use the
// majority write concern and publish a change event only once acknowledged.
type ResourceRepository struct {
	coll      *mongo.Collection
	publisher domain.EventPublisher
	logger    log.Logger
	now       func() time.Time
}

var _ domain.ResourceDirectory = (*ResourceRepository)(nil)

// NewResourceRepository creates a ResourceRepository. publisher may be nil.
func NewResourceRepository(db *mongo.Database, publisher domain.EventPublisher, logger log.Logger) *ResourceRepository {
	if logger == nil {
		logger = log.Nop()
	}

	coll := db.Collection(ResourcesCollection,
		options.Collection().SetWriteConcern(writeconcern.Majority()))

	return &ResourceRepository{
		coll:      coll,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ListResources implements domain.ResourceDirectory.
func (r *ResourceRepository) ListResources(ctx context.Context) ([]domain.SecuredResource, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list secured resources: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.SecuredResource
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode secured resources: %w", err)
	}

	return out, nil
}

// Save inserts or replaces a resource.
func (r *ResourceRepository) Save(ctx context.Context, res domain.SecuredResource) error {
	if res.ID == "" {
		return fmt.Errorf("%w: secured resource id is required", serrors.ErrInvalidRequest)
	}

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": res.ID}, res, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save secured resource: %w", err)
	}

	return r.publish(ctx, res.ID, domain.ResourceSaved)
}

// Delete removes a resource.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete secured resource: %w", err)
	}

	if result.DeletedCount == 0 {
		return serrors.ErrNotFound
	}

	return r.publish(ctx, id, domain.ResourceDeleted)
}

func (r *ResourceRepository) publish(ctx context.Context, id, op string) error {
	if r.publisher == nil {
		return nil
	}

	evt := domain.ResourceChanged{ResourceID: id, Op: op, CommittedAt: r.now()}
	if err := r.publisher.Publish(ctx, evt); err != nil {
		r.logger.Error(ctx, "failed to publish resource change", err, log.Fields{"resource_id": id})
		return fmt.Errorf("resource change committed but not published: %w", err)
	}

	return nil
}
