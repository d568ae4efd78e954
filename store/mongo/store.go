package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/membership"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "goshield_users"
	accountsCollection = "goshield_accounts"
	maxCASAttempts     = 8
)

// userDoc stores a user with its optimistic revision.
type userDoc struct {
	goShield.User `bson:",inline"`
	Rev           int64 `bson:"rev"`
}

// Store is a MongoDB-backed user and account store.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	accounts *mongo.Collection
}

var (
	_ goShield.UserStore = (*Store)(nil)
	_ membership.Store   = (*Store)(nil)
)

// Connect dials uri, pings it and returns a store over database db.
func Connect(ctx context.Context, uri, db string) (*Store, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s := New(client.Database(db))
	s.client = client
	return s, nil
}

// New returns a store over db. The caller owns the client.
func New(db *mongo.Database) *Store {
	return &Store{
		users:    db.Collection(usersCollection),
		accounts: db.Collection(accountsCollection),
	}
}

// Close disconnects a client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique email index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
	})
	return err
}

func userUnavailable(err error) error {
	return fmt.Errorf("%w: %v", goShield.ErrStoreUnavailable, err)
}

func accountUnavailable(err error) error {
	return fmt.Errorf("%w: %v", membership.ErrStoreUnavailable, err)
}

/*
====================================
USERS
====================================
*/

func (s *Store) CreateUser(ctx context.Context, u *goShield.User) error {
	doc := userDoc{User: *u.Clone()}
	doc.Email = goShield.NormalizeEmail(doc.Email)

	_, err := s.users.InsertOne(ctx, doc)
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return goShield.ErrUserExists
	default:
		return userUnavailable(err)
	}
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*goShield.User, error) {
	doc, err := s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, err
	}
	return &doc.User, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*goShield.User, error) {
	doc, err := s.findUser(ctx, bson.D{{Key: "email", Value: goShield.NormalizeEmail(email)}})
	if err != nil {
		return nil, err
	}
	return &doc.User, nil
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*userDoc, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	switch {
	case err == nil:
		return &doc, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, goShield.ErrUserNotFound
	default:
		return nil, userUnavailable(err)
	}
}

func (s *Store) UpdateUser(ctx context.Context, id string, mutate func(*goShield.User) error) (*goShield.User, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
		if err != nil {
			return nil, err
		}
		rev := current.Rev

		next := userDoc{User: *current.User.Clone(), Rev: rev + 1}
		if err := mutate(&next.User); err != nil {
			return nil, err
		}
		next.ID = id
		next.Email = goShield.NormalizeEmail(next.Email)

		res, err := s.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "rev", Value: rev}}, next)
		switch {
		case err == nil && res.MatchedCount == 1:
			return &next.User, nil
		case err == nil:
			continue
		case mongo.IsDuplicateKeyError(err):
			return nil, goShield.ErrUserExists
		default:
			return nil, userUnavailable(err)
		}
	}
	return nil, userUnavailable(membership.ErrConflict)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return userUnavailable(err)
	}
	return nil
}

/*
====================================
ACCOUNTS
====================================
*/

func (s *Store) Create(ctx context.Context, a *membership.Account) error {
	_, err := s.accounts.InsertOne(ctx, a.Clone())
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return membership.ErrAccountExists
	default:
		return accountUnavailable(err)
	}
}

func (s *Store) Get(ctx context.Context, id string) (*membership.Account, error) {
	var a membership.Account
	err := s.accounts.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&a)
	switch {
	case err == nil:
		return &a, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, membership.ErrAccountNotFound
	default:
		return nil, accountUnavailable(err)
	}
}

// Update retries mutate against fresh reads until its version check wins, so two concurrent
// updates never both apply to the same pre-image.
func (s *Store) Update(ctx context.Context, id string, mutate func(*membership.Account) error) (*membership.Account, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		version := current.Version

		if err := mutate(current); err != nil {
			return nil, err
		}
		current.ID = id
		current.Version = version + 1

		res, err := s.accounts.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "version", Value: version}}, current)
		if err != nil {
			return nil, accountUnavailable(err)
		}
		if res.MatchedCount == 1 {
			return current, nil
		}
	}
	return nil, membership.ErrConflict
}
