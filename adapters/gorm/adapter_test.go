package gorm

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/logger"

	keylio "github.com/Lymore01/keylio"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	db, err := gormlib.Open(sqlite.Open(":memory:"), &gormlib.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	for _, stmt := range []string{
		"CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT, passwordHash TEXT, role TEXT, age INTEGER)",
		"CREATE TABLE sessions (id INTEGER PRIMARY KEY AUTOINCREMENT, sessionToken TEXT, userId TEXT, expires TEXT)",
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return New(db, nil)
}

func seedUsers(t *testing.T, a *Adapter) {
	t.Helper()
	ctx := context.Background()
	rows := []keylio.Record{
		{"id": "u1", "email": "alice@example.com", "role": "admin", "age": 30},
		{"id": "u2", "email": "bob@example.com", "role": "user", "age": 25},
		{"id": "u3", "email": "carol@other.org", "role": "user", "age": 41},
	}
	for _, row := range rows {
		_, err := a.Create(ctx, keylio.ModelUser, row)
		require.NoError(t, err)
	}
}

func TestModelResolution(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	// Exact, lower-cased and camel-cased spellings all resolve.
	for _, model := range []string{"user", "User", "USER"} {
		_, err := a.FindOne(ctx, model, []keylio.Where{{Field: "id", Value: "nope"}})
		assert.NoError(t, err, model)
	}

	_, err := a.FindOne(ctx, "widget", nil)
	ae, ok := keylio.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, keylio.CodeModelNotFound, ae.Code)
}

func TestCustomModelMap(t *testing.T) {
	db, err := gormlib.Open(sqlite.Open(":memory:"), &gormlib.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE accounts (id TEXT PRIMARY KEY, email TEXT)").Error)

	a := New(db, &Config{Models: map[string]string{"user": "accounts"}})
	_, err = a.Create(context.Background(), "user", keylio.Record{"id": "u1", "email": "alice@example.com"})
	assert.NoError(t, err)
}

func TestCreateAndFindOne(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	rec, err := a.FindOne(ctx, "user", []keylio.Where{
		{Field: "email", Value: "bob@example.com"},
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u2", rec["id"])

	rec, err = a.FindOne(ctx, "user", []keylio.Where{
		{Field: "email", Value: "nobody@example.com"},
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindOneProjection(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)

	rec, err := a.FindOne(context.Background(), "user", []keylio.Where{
		{Field: "id", Value: "u1"},
	}, "id", "email")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice@example.com", rec["email"])
	_, hasHash := rec["passwordHash"]
	assert.False(t, hasHash)
}

func TestFindManyConnectorGrouping(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	// role = user AND (email LIKE %.org OR age < 30)
	recs, err := a.FindMany(ctx, "user", []keylio.Where{
		{Field: "role", Value: "user"},
		{Field: "email", Operator: keylio.OpEndsWith, Value: ".org", Connector: keylio.ConnectorOr},
		{Field: "age", Operator: keylio.OpLt, Value: 30, Connector: keylio.ConnectorOr},
	}, nil)
	require.NoError(t, err)

	var ids []string
	for _, r := range recs {
		ids = append(ids, r["id"].(string))
	}
	assert.ElementsMatch(t, []string{"u2", "u3"}, ids)
}

func TestFindManySortAndPagination(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	recs, err := a.FindMany(ctx, "user", nil, &keylio.QueryOptions{
		SortBy: &keylio.SortBy{Field: "age", Direction: "desc"},
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "u3", recs[0]["id"])
	assert.Equal(t, "u1", recs[1]["id"])

	recs, err = a.FindMany(ctx, "user", nil, &keylio.QueryOptions{
		SortBy: &keylio.SortBy{Field: "age", Direction: "asc"},
		Limit:  2,
		Offset: 2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u3", recs[0]["id"])
}

func TestLikeMetacharactersMatchLiterally(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.Create(ctx, "user", keylio.Record{"id": "p1", "email": "50%off@example.com"})
	require.NoError(t, err)
	_, err = a.Create(ctx, "user", keylio.Record{"id": "p2", "email": "500ff@example.com"})
	require.NoError(t, err)

	recs, err := a.FindMany(ctx, "user", []keylio.Where{
		{Field: "email", Operator: keylio.OpContains, Value: "50%off"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0]["id"])
}

func TestUpdateTargetsResolvedRow(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	rec, err := a.Update(ctx, "user", []keylio.Where{
		{Field: "email", Value: "bob@example.com"},
	}, keylio.Record{"role": "admin"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "admin", rec["role"])
	assert.Equal(t, "u2", rec["id"])

	rec, err = a.Update(ctx, "user", []keylio.Where{
		{Field: "email", Value: "nobody@example.com"},
	}, keylio.Record{"role": "admin"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateMany(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	n, err := a.UpdateMany(ctx, "user", []keylio.Where{
		{Field: "role", Value: "user"},
	}, keylio.Record{"role": "member"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// An empty clause updates every row.
	n, err = a.UpdateMany(ctx, "user", nil, keylio.Record{"role": "all"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestDeleteIsIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	where := []keylio.Where{{Field: "id", Value: "u1"}}
	require.NoError(t, a.Delete(ctx, "user", where))
	require.NoError(t, a.Delete(ctx, "user", where))

	n, err := a.Count(ctx, "user", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDeleteMany(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)
	ctx := context.Background()

	n, err := a.DeleteMany(ctx, "user", []keylio.Where{
		{Field: "role", Value: "user"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = a.Count(ctx, "user", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCount(t *testing.T) {
	a := newTestAdapter(t)
	seedUsers(t, a)

	n, err := a.Count(context.Background(), "user", []keylio.Where{
		{Field: "age", Operator: keylio.OpGt, Value: 26},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestTransactionRollsBack(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := a.Transaction(ctx, func(tx keylio.Adapter) error {
		if _, err := tx.Create(ctx, "user", keylio.Record{"id": "u1", "email": "alice@example.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := a.Count(ctx, "user", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	err = a.Transaction(ctx, func(tx keylio.Adapter) error {
		_, err := tx.Create(ctx, "user", keylio.Record{"id": "u1", "email": "alice@example.com"})
		return err
	})
	require.NoError(t, err)

	n, err = a.Count(ctx, "user", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
