package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keylio "github.com/Lymore01/keylio"
	"github.com/Lymore01/keylio/adapters/memory"
)

func seedUsers(t *testing.T, a *memory.Adapter) {
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

func TestUnknownModel(t *testing.T) {
	a := memory.New()
	ctx := context.Background()

	_, err := a.FindOne(ctx, "widget", nil)
	ae, ok := keylio.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, keylio.CodeModelNotFound, ae.Code)

	// Extra models registered at construction are served.
	b := memory.New("widget")
	_, err = b.Create(ctx, "widget", keylio.Record{"name": "sprocket"})
	assert.NoError(t, err)
}

func TestCreateAssignsID(t *testing.T) {
	a := memory.New()
	ctx := context.Background()

	rec, err := a.Create(ctx, keylio.ModelUser, keylio.Record{"email": "alice@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec["id"])

	kept, err := a.Create(ctx, keylio.ModelUser, keylio.Record{"id": "explicit", "email": "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", kept["id"])
}

func TestFindOne(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	rec, err := a.FindOne(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "email", Value: "bob@example.com"},
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u2", rec["id"])

	rec, err = a.FindOne(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "email", Value: "nobody@example.com"},
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindOneProjection(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)

	rec, err := a.FindOne(context.Background(), keylio.ModelUser, []keylio.Where{
		{Field: "id", Value: "u1"},
	}, "id", "email")
	require.NoError(t, err)
	assert.Equal(t, keylio.Record{"id": "u1", "email": "alice@example.com"}, rec)
}

func TestOperators(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	cases := []struct {
		name  string
		where []keylio.Where
		ids   []string
	}{
		{"ne", []keylio.Where{{Field: "role", Operator: keylio.OpNe, Value: "admin"}}, []string{"u2", "u3"}},
		{"lt", []keylio.Where{{Field: "age", Operator: keylio.OpLt, Value: 30}}, []string{"u2"}},
		{"gte", []keylio.Where{{Field: "age", Operator: keylio.OpGte, Value: 30}}, []string{"u1", "u3"}},
		{"in", []keylio.Where{{Field: "id", Operator: keylio.OpIn, Value: []any{"u1", "u3"}}}, []string{"u1", "u3"}},
		{"not_in", []keylio.Where{{Field: "id", Operator: keylio.OpNotIn, Value: []any{"u1", "u3"}}}, []string{"u2"}},
		{"contains", []keylio.Where{{Field: "email", Operator: keylio.OpContains, Value: "example"}}, []string{"u1", "u2"}},
		{"starts_with", []keylio.Where{{Field: "email", Operator: keylio.OpStartsWith, Value: "carol"}}, []string{"u3"}},
		{"ends_with", []keylio.Where{{Field: "email", Operator: keylio.OpEndsWith, Value: ".org"}}, []string{"u3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recs, err := a.FindMany(ctx, keylio.ModelUser, tc.where, nil)
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r["id"].(string))
			}
			assert.ElementsMatch(t, tc.ids, ids)
		})
	}
}

func TestConnectorGrouping(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	// role = user AND (email ends .org OR age < 30)
	recs, err := a.FindMany(ctx, keylio.ModelUser, []keylio.Where{
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

func TestSortLimitOffset(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	recs, err := a.FindMany(ctx, keylio.ModelUser, nil, &keylio.QueryOptions{
		SortBy: &keylio.SortBy{Field: "age", Direction: "desc"},
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "u3", recs[0]["id"])
	assert.Equal(t, "u1", recs[1]["id"])

	recs, err = a.FindMany(ctx, keylio.ModelUser, nil, &keylio.QueryOptions{
		SortBy: &keylio.SortBy{Field: "age", Direction: "asc"},
		Offset: 2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u3", recs[0]["id"])

	recs, err = a.FindMany(ctx, keylio.ModelUser, nil, &keylio.QueryOptions{Offset: 99})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdate(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	rec, err := a.Update(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "id", Value: "u2"},
	}, keylio.Record{"role": "admin"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "admin", rec["role"])
	assert.Equal(t, "bob@example.com", rec["email"])

	rec, err = a.Update(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "id", Value: "ghost"},
	}, keylio.Record{"role": "admin"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateMany(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	n, err := a.UpdateMany(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "role", Value: "user"},
	}, keylio.Record{"role": "member"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	count, err := a.Count(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "role", Value: "member"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestDeleteIsIdempotent(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	where := []keylio.Where{{Field: "id", Value: "u1"}}
	require.NoError(t, a.Delete(ctx, keylio.ModelUser, where))
	require.NoError(t, a.Delete(ctx, keylio.ModelUser, where))

	n, err := a.Count(ctx, keylio.ModelUser, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDeleteMany(t *testing.T) {
	a := memory.New()
	seedUsers(t, a)
	ctx := context.Background()

	n, err := a.DeleteMany(ctx, keylio.ModelUser, []keylio.Where{
		{Field: "role", Value: "user"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = a.Count(ctx, keylio.ModelUser, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTimeComparison(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	now := time.Now()

	_, err := a.Create(ctx, keylio.ModelSession, keylio.Record{
		"sessionToken": "live", "expires": now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = a.Create(ctx, keylio.ModelSession, keylio.Record{
		"sessionToken": "stale", "expires": now.Add(-time.Hour),
	})
	require.NoError(t, err)

	recs, err := a.FindMany(ctx, keylio.ModelSession, []keylio.Where{
		{Field: "expires", Operator: keylio.OpGt, Value: now},
	}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "live", recs[0]["sessionToken"])
}

func TestRecordsAreCopied(t *testing.T) {
	a := memory.New()
	ctx := context.Background()

	in := keylio.Record{"id": "u1", "email": "alice@example.com"}
	_, err := a.Create(ctx, keylio.ModelUser, in)
	require.NoError(t, err)
	in["email"] = "mutated@example.com"

	rec, err := a.FindOne(ctx, keylio.ModelUser, []keylio.Where{{Field: "id", Value: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rec["email"])

	rec["email"] = "also-mutated@example.com"
	again, err := a.FindOne(ctx, keylio.ModelUser, []keylio.Where{{Field: "id", Value: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", again["email"])
}
