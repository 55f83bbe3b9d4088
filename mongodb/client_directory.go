package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// ClientDirectory implements domain.ClientDirectory using MongoDB.
type ClientDirectory struct {
	coll *mongo.Collection
}

var _ domain.ClientDirectory = (*ClientDirectory)(nil)

func NewClientDirectory(db *mongo.Database) *ClientDirectory {
	return &ClientDirectory{coll: db.Collection(ClientsCollection)}
}

// FindClient implements domain.ClientDirectory.
func (d *ClientDirectory) FindClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var c domain.Client

	err := d.coll.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find client: %w", err)
	}

	return &c, nil
}

// SaveClient inserts or replaces a client registration.
func (d *ClientDirectory) SaveClient(ctx context.Context, c *domain.Client) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := d.coll.ReplaceOne(ctx, bson.M{"client_id": c.ID}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	return nil
}
