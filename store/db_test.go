package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/haystack-go/model"
)

// Needs PostgreSQL with PostGIS, e.g.
// HAYSTACK_TEST_DSN="host=localhost user=postgres password=postgres dbname=haystack sslmode=disable"
func openTestDB(t *testing.T) *DB {
	dsn := os.Getenv("HAYSTACK_TEST_DSN")
	if dsn == "" {
		t.Skip("HAYSTACK_TEST_DSN not set")
	}
	db, err := OpenPostgres(dsn)
	require.NoError(t, err)
	return db
}

func TestDB_MergeQueryLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	acc := model.Accessory{ID: uuid.NewString(), Name: "test"}
	require.NoError(t, db.Register(ctx, acc))
	acc.Name = "renamed"
	require.NoError(t, db.Register(ctx, acc))

	latest, err := db.Latest(ctx, acc.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	res, err := db.Merge(ctx, acc.ID, []model.LocationFix{fixAt(20, 2), fixAt(10, 1)})
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)

	res, err = db.Merge(ctx, acc.ID, []model.LocationFix{fixAt(10, 1), fixAt(20, 5), fixAt(30, 3)})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Conflicts)

	all, err := db.Query(ctx, acc.ID, model.TimeWindow{Start: base, Duration: time.Hour})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assertOrdered(t, all)
	assert.InDelta(t, 2.0, all[1].Latitude, 1e-9)

	latest, err = db.Latest(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Timestamp.Equal(fixAt(30, 3).Timestamp))
}
