package mongo

import (
	"context"
	"testing"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/membership"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func toD(t require.TestingT, v any) bson.D {
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func found(mt *mtest.T, coll string, doc bson.D) bson.D {
	return mtest.CreateCursorResponse(0, mt.DB.Name()+"."+coll, mtest.FirstBatch, doc)
}

func notFound(mt *mtest.T, coll string) bson.D {
	return mtest.CreateCursorResponse(0, mt.DB.Name()+"."+coll, mtest.FirstBatch)
}

func replaced(n int) bson.D {
	return bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: n}, {Key: "nModified", Value: n}}
}

func sampleUser() goShield.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return goShield.User{
		ID:        "u-1",
		Name:      "Owner",
		Email:     "owner@example.com",
		AccountID: "a-1",
		Role:      membership.RoleOwner,
		Status:    goShield.UserActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUsers(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		u := sampleUser()
		u.Email = " Owner@Example.com"
		require.NoError(mt, New(mt.DB).CreateUser(context.Background(), &u))
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))
		u := sampleUser()
		assert.ErrorIs(mt, New(mt.DB).CreateUser(context.Background(), &u), goShield.ErrUserExists)
	})

	mt.Run("get by email", func(mt *mtest.T) {
		mt.AddMockResponses(found(mt, usersCollection, toD(mt, userDoc{User: sampleUser(), Rev: 3})))
		u, err := New(mt.DB).GetUserByEmail(context.Background(), "OWNER@example.com")
		require.NoError(mt, err)
		assert.Equal(mt, "u-1", u.ID)
		assert.Equal(mt, membership.RoleOwner, u.Role)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		mt.AddMockResponses(notFound(mt, usersCollection))
		_, err := New(mt.DB).GetUserByID(context.Background(), "nope")
		assert.ErrorIs(mt, err, goShield.ErrUserNotFound)
	})

	mt.Run("update retries a lost race", func(mt *mtest.T) {
		doc := toD(mt, userDoc{User: sampleUser(), Rev: 1})
		mt.AddMockResponses(
			found(mt, usersCollection, doc),
			replaced(0),
			found(mt, usersCollection, doc),
			replaced(1),
		)

		calls := 0
		u, err := New(mt.DB).UpdateUser(context.Background(), "u-1", func(u *goShield.User) error {
			calls++
			u.EmailVerified = true
			return nil
		})
		require.NoError(mt, err)
		assert.True(mt, u.EmailVerified)
		assert.Equal(mt, 2, calls)
	})

	mt.Run("update mutate error", func(mt *mtest.T) {
		mt.AddMockResponses(found(mt, usersCollection, toD(mt, userDoc{User: sampleUser()})))
		_, err := New(mt.DB).UpdateUser(context.Background(), "u-1", func(*goShield.User) error {
			return goShield.ErrEmailAlreadyVerified
		})
		assert.ErrorIs(mt, err, goShield.ErrEmailAlreadyVerified)
	})

	mt.Run("backend failure", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "shutting down",
		}))
		_, err := New(mt.DB).GetUserByID(context.Background(), "u-1")
		assert.ErrorIs(mt, err, goShield.ErrStoreUnavailable)
	})
}

func sampleAccount(version int64) *membership.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &membership.Account{
		ID:       "a-1",
		Name:     "Acme",
		OwnerID:  "u-1",
		Capacity: membership.Capacity,
		Plan:     membership.PlanBasic,
		Status:   membership.StatusTrial,
		Members: []membership.Member{
			{UserID: "u-1", Role: membership.RoleOwner, AddedAt: now},
		},
		ExpiresAt: now.Add(membership.TrialPeriod),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   version,
	}
}

func TestAccounts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create and get", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			found(mt, accountsCollection, toD(mt, sampleAccount(0))),
		)
		s := New(mt.DB)
		require.NoError(mt, s.Create(context.Background(), sampleAccount(0)))

		acct, err := s.Get(context.Background(), "a-1")
		require.NoError(mt, err)
		require.Len(mt, acct.Members, 1)
		assert.Equal(mt, membership.RoleOwner, acct.Members[0].Role)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		mt.AddMockResponses(notFound(mt, accountsCollection))
		_, err := New(mt.DB).Get(context.Background(), "nope")
		assert.ErrorIs(mt, err, membership.ErrAccountNotFound)
	})

	mt.Run("update bumps version", func(mt *mtest.T) {
		mt.AddMockResponses(found(mt, accountsCollection, toD(mt, sampleAccount(4))), replaced(1))

		acct, err := New(mt.DB).Update(context.Background(), "a-1", func(a *membership.Account) error {
			a.Members = append(a.Members, membership.Member{UserID: "u-2", Role: membership.RoleAdmin})
			return nil
		})
		require.NoError(mt, err)
		assert.Equal(mt, int64(5), acct.Version)
		assert.Len(mt, acct.Members, 2)
	})

	mt.Run("update gives up after repeated conflicts", func(mt *mtest.T) {
		doc := toD(mt, sampleAccount(1))
		for i := 0; i < maxCASAttempts; i++ {
			mt.AddMockResponses(found(mt, accountsCollection, doc), replaced(0))
		}
		_, err := New(mt.DB).Update(context.Background(), "a-1", func(*membership.Account) error { return nil })
		assert.ErrorIs(mt, err, membership.ErrConflict)
	})

	mt.Run("rejected mutation writes nothing", func(mt *mtest.T) {
		mt.AddMockResponses(found(mt, accountsCollection, toD(mt, sampleAccount(1))))
		_, err := New(mt.DB).Update(context.Background(), "a-1", func(*membership.Account) error {
			return membership.ErrRoleConflict
		})
		assert.ErrorIs(mt, err, membership.ErrRoleConflict)
	})
}
