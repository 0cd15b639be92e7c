package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/newsdesk/service-core/internal/user/entity"
)

const (
	usersCollection = "users"
	emailIndex      = "uniq_users_email"
	usernameIndex   = "uniq_users_username"
)

type userDoc struct {
	ID                  string     `bson:"_id"`
	Email               string     `bson:"email,omitempty"`
	Username            string     `bson:"username"`
	ProviderID          string     `bson:"provider_id,omitempty"`
	Avatar              string     `bson:"avatar,omitempty"`
	Role                string     `bson:"role"`
	PasswordHash        string     `bson:"password_hash,omitempty"`
	Status              string     `bson:"status"`
	LoginFailedAttempts int        `bson:"login_failed_attempts"`
	LockedUntil         *time.Time `bson:"locked_until,omitempty"`
	LastLoginAt         *time.Time `bson:"last_login_at,omitempty"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

func docFromEntity(u *entity.User) userDoc {
	return userDoc{
		ID:                  u.ID,
		Email:               strings.ToLower(u.Email),
		Username:            u.Username,
		ProviderID:          u.ProviderID,
		Avatar:              u.Avatar,
		Role:                string(u.Role),
		PasswordHash:        u.PasswordHash,
		Status:              u.Status,
		LoginFailedAttempts: u.LoginFailedAttempts,
		LockedUntil:         u.LockedUntil,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func (d userDoc) toEntity() *entity.User {
	return &entity.User{
		ID:                  d.ID,
		Email:               d.Email,
		Username:            d.Username,
		ProviderID:          d.ProviderID,
		Avatar:              d.Avatar,
		Role:                entity.Role(d.Role),
		PasswordHash:        d.PasswordHash,
		Status:              d.Status,
		LoginFailedAttempts: d.LoginFailedAttempts,
		LockedUntil:         d.LockedUntil,
		LastLoginAt:         d.LastLoginAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// MongoRepo is the MongoDB account store. Emails are stored lower-cased.
type MongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique indexes, email first. The email index is
// sparse so accounts without an address do not collide.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndex).SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName(usernameIndex).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *MongoRepo) findOne(ctx context.Context, filter bson.D) (*entity.User, error) {
	var d userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, translateMongo(err)
	}
	return d.toEntity(), nil
}

func (r *MongoRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
}

func (r *MongoRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *MongoRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoRepo) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*entity.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEntity())
	}
	return out, nil
}

func (r *MongoRepo) Create(ctx context.Context, u *entity.User) error {
	applyDefaults(u)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if _, err := r.coll.InsertOne(ctx, docFromEntity(u)); err != nil {
		return translateMongo(err)
	}
	return nil
}

func (r *MongoRepo) Save(ctx context.Context, u *entity.User) error {
	now := time.Now().UTC()
	set := bson.D{
		{Key: "username", Value: u.Username},
		{Key: "updated_at", Value: now},
	}
	var unset bson.D
	for _, f := range []struct {
		key, val string
	}{{"provider_id", u.ProviderID}, {"avatar", u.Avatar}} {
		if f.val == "" {
			unset = append(unset, bson.E{Key: f.key, Value: ""})
		} else {
			set = append(set, bson.E{Key: f.key, Value: f.val})
		}
	}
	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, update)
	if err != nil {
		return translateMongo(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	u.UpdatedAt = now
	return nil
}

func (r *MongoRepo) UpdateRole(ctx context.Context, id string, role entity.Role) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "role", Value: string(role)}, {Key: "updated_at", Value: time.Now().UTC()}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "password_hash", Value: hash}, {Key: "updated_at", Value: time.Now().UTC()}}}},
	)
	return err
}

func (r *MongoRepo) IncrementFailedLogin(ctx context.Context, id string) (int, error) {
	var d userDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "login_failed_attempts", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		return 0, translateMongo(err)
	}
	return d.LoginFailedAttempts, nil
}

func (r *MongoRepo) LockIfThreshold(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: entity.StatusActive},
			{Key: "login_failed_attempts", Value: bson.D{{Key: "$gte", Value: threshold}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: entity.StatusLocked},
			{Key: "locked_until", Value: now.Add(lockFor)},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoRepo) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: entity.StatusLocked},
			{Key: "locked_until", Value: bson.D{{Key: "$lt", Value: now}}},
		},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "status", Value: entity.StatusActive},
				{Key: "login_failed_attempts", Value: 0},
				{Key: "updated_at", Value: now},
			}},
			{Key: "$unset", Value: bson.D{{Key: "locked_until", Value: ""}}},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoRepo) ResetLoginSuccess(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "login_failed_attempts", Value: 0},
				{Key: "last_login_at", Value: now},
				{Key: "updated_at", Value: now},
			}},
			{Key: "$unset", Value: bson.D{{Key: "locked_until", Value: ""}}},
		},
	)
	return err
}

// translateMongo maps driver errors onto the package sentinels. Duplicate
// key errors are classified by the index they name.
func translateMongo(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msgs := []string{err.Error()}
	var we mongo.WriteException
	if errors.As(err, &we) {
		msgs = msgs[:0]
		for _, e := range we.WriteErrors {
			msgs = append(msgs, e.Message)
		}
	}
	for _, msg := range msgs {
		switch violatedIndex(msg) {
		case emailIndex:
			return ErrDuplicateEmail
		case usernameIndex:
			return ErrDuplicateUsername
		}
	}
	return err
}

// violatedIndex pulls the name out of the "index: <name> dup key" fragment
// of an E11000 message. The dup key value that follows is never read.
func violatedIndex(msg string) string {
	_, rest, ok := strings.Cut(msg, " index: ")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, " ")
	return name
}
