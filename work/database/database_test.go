package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not re-apply migrations
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInsertMappingIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertMapping("0123456789abcdef0123456789abcdef", "file-a"))
	require.NoError(t, db.InsertMapping("0123456789abcdef0123456789abcdef", "file-a"))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM stream_mappings").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestGetMappingByToken(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertMapping("0123456789abcdef0123456789abcdef", "file-a"))

	row, err := db.GetMappingByToken("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "file-a", row.ProviderFileID)
	assert.False(t, row.CreatedAt.IsZero())

	row, err = db.GetMappingByToken("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGetMappingByFileID(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertMapping("0123456789abcdef0123456789abcdef", "file-a"))

	row, err := db.GetMappingByFileID("file-a")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", row.UniqueID)

	row, err = db.GetMappingByFileID("file-unknown")
	require.NoError(t, err)
	assert.Nil(t, row)
}
