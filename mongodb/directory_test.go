package mongodb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
	"go.pilab.hu/authcore/mongodb"
	"go.pilab.hu/authcore/mongodb/testutil"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt domain.ResourceChanged) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func TestClientDirectory_FindClient(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.oauth_clients", mtest.FirstBatch, bson.D{
			{Key: "client_id", Value: "C1"},
			{Key: "client_type", Value: "confidential"},
			{Key: "is_active", Value: true},
			{Key: "allowed_grant_types", Value: bson.A{"client_credentials"}},
			{Key: "allowed_scopes", Value: bson.A{"read"}},
		}))

		c, err := mongodb.NewClientDirectory(mt.DB).FindClient(context.Background(), "C1")
		require.NoError(mt, err)
		assert.Equal(mt, "C1", c.ID)
		assert.True(mt, c.Active)
		assert.True(mt, c.AllowsGrant(domain.GrantTypeClientCredentials))
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.oauth_clients", mtest.FirstBatch))

		_, err := mongodb.NewClientDirectory(mt.DB).FindClient(context.Background(), "missing")
		assert.ErrorIs(mt, err, serrors.ErrNotFound)
	})
}

func TestUserDirectory_FindUserByUsername(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.oauth_users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u1"},
			{Key: "username", Value: "alice"},
			{Key: "status", Value: "ACTIVE"},
		}))

		u, err := mongodb.NewUserDirectory(mt.DB).FindUserByUsername(context.Background(), "alice")
		require.NoError(mt, err)
		assert.Equal(mt, "u1", u.ID)
		assert.True(mt, u.IsActive())
	})
}

func TestResourceRepository_PublishesAfterAcknowledgedWrite(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save acknowledged", func(mt *mtest.T) {
		pub := new(MockPublisher)
		pub.On("Publish", mock.Anything, mock.MatchedBy(func(evt domain.ResourceChanged) bool {
			return evt.ResourceID == "r1" && evt.Op == domain.ResourceSaved && !evt.CommittedAt.IsZero()
		})).Return(nil).Once()

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		repo := mongodb.NewResourceRepository(mt.DB, pub, nil)
		require.NoError(mt, repo.Save(context.Background(), domain.SecuredResource{
			ID: "r1", Pattern: "/api/**", Method: domain.MethodAll, Authorities: []string{"USER"},
		}))
		pub.AssertExpectations(mt)
	})

	mt.Run("save rejected", func(mt *mtest.T) {
		pub := new(MockPublisher)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		repo := mongodb.NewResourceRepository(mt.DB, pub, nil)
		err := repo.Save(context.Background(), domain.SecuredResource{ID: "r1", Pattern: "/x"})
		require.Error(mt, err)
		pub.AssertNotCalled(mt, "Publish", mock.Anything, mock.Anything)
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		pub := new(MockPublisher)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		repo := mongodb.NewResourceRepository(mt.DB, pub, nil)
		assert.ErrorIs(mt, repo.Delete(context.Background(), "nope"), serrors.ErrNotFound)
		pub.AssertNotCalled(mt, "Publish", mock.Anything, mock.Anything)
	})

	mt.Run("publish failure is reported", func(mt *mtest.T) {
		pub := new(MockPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		repo := mongodb.NewResourceRepository(mt.DB, pub, nil)
		assert.Error(mt, repo.Delete(context.Background(), "r1"))
	})

	mt.Run("list", func(mt *mtest.T) {
		first := mtest.CreateCursorResponse(1, "test.secured_resources", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}, {Key: "pattern", Value: "/a/**"}, {Key: "method", Value: "GET"}, {Key: "authorities", Value: bson.A{"A"}}},
			bson.D{{Key: "_id", Value: "b"}, {Key: "pattern", Value: "/b"}, {Key: "method", Value: "ALL"}, {Key: "authorities", Value: bson.A{"B"}}},
		)
		last := mtest.CreateCursorResponse(0, "test.secured_resources", mtest.NextBatch)
		mt.AddMockResponses(first, last)

		list, err := mongodb.NewResourceRepository(mt.DB, nil, nil).ListResources(context.Background())
		require.NoError(mt, err)
		require.Len(mt, list, 2)
		assert.Equal(mt, "/a/**", list[0].Pattern)
		assert.Equal(mt, []string{"B"}, list[1].Authorities)
	})
}

func TestDirectories_Integration(t *testing.T) {
	db := testutil.SetupTestMongoDB(t, "authcore_directories")
	ctx := context.Background()

	require.NoError(t, mongodb.EnsureIndexes(ctx, db))

	clients := mongodb.NewClientDirectory(db)
	require.NoError(t, clients.SaveClient(ctx, &domain.Client{
		ID: "C1", Type: domain.ClientTypeConfidential, Active: true,
		AllowedGrantTypes: []domain.GrantType{domain.GrantTypeClientCredentials},
	}))

	c, err := clients.FindClient(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, c.CreatedAt.IsZero())

	users := mongodb.NewUserDirectory(db)
	require.NoError(t, users.SaveUser(ctx, &domain.User{ID: "u1", Username: "alice", Status: domain.UserStatusActive}))
	u, err := users.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	resources := mongodb.NewResourceRepository(db, nil, nil)
	require.NoError(t, resources.Save(ctx, domain.SecuredResource{ID: "r1", Pattern: "/x", Method: "GET", Authorities: []string{"A"}}))
	list, err := resources.ListResources(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, resources.Delete(ctx, "r1"))
}
