package repo

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/pkg/utilities"
)

func TestTranslateMongo(t *testing.T) {
	assert.ErrorIs(t, translateMongo(mongo.ErrNoDocuments), ErrNotFound)

	dup := func(index string) error {
		return mongo.WriteException{WriteErrors: []mongo.WriteError{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: newsroom.users index: " + index + " dup key",
		}}}
	}
	assert.ErrorIs(t, translateMongo(dup(emailIndex)), ErrDuplicateEmail)
	assert.ErrorIs(t, translateMongo(dup(usernameIndex)), ErrDuplicateUsername)

	// the duplicated value is echoed in the message and must not be mistaken
	// for the index name
	valueLooksLikeIndex := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: `E11000 duplicate key error collection: newsroom.users index: ` + usernameIndex + ` dup key: { username: "` + emailIndex + `" }`,
	}}}
	assert.ErrorIs(t, translateMongo(valueLooksLikeIndex), ErrDuplicateUsername)
}

func TestViolatedIndex(t *testing.T) {
	assert.Equal(t, emailIndex, violatedIndex("E11000 duplicate key error collection: newsroom.users index: "+emailIndex+" dup key: { email: \"a@x.com\" }"))
	assert.Equal(t, "", violatedIndex("some other failure"))
}

func TestDocRoundTrip_LowercasesEmail(t *testing.T) {
	d := docFromEntity(&entity.User{ID: "1", Email: "A@X.com", Username: "a", Role: entity.RoleAdmin})
	assert.Equal(t, "a@x.com", d.Email)
	assert.Equal(t, entity.RoleAdmin, d.toEntity().Role)
}

// Runs against a live server only when MONGO_TEST_URI is set.
func TestMongoRepo_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	db := client.Database("newsroom_test_" + utilities.NewKSUID())
	defer db.Drop(ctx)

	r := NewMongoRepo(db)
	require.NoError(t, r.EnsureIndexes(ctx))

	u := &entity.User{ID: "1", Email: "a@x.com", Username: "Bob"}
	require.NoError(t, r.Create(ctx, u))

	got, err := r.FindByEmail(ctx, "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Username)

	err = r.Create(ctx, &entity.User{ID: "2", Email: "a@x.com", Username: "Bob"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	err = r.Create(ctx, &entity.User{ID: "3", Email: "b@x.com", Username: "Bob"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	got.ProviderID = "p1"
	require.NoError(t, r.Save(ctx, got))
	again, err := r.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "p1", again.ProviderID)

	_, err = r.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
