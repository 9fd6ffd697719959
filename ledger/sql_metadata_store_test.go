package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobvault/blobvault/persistence"
	// needed to use sqlite in tests
	_ "github.com/mattn/go-sqlite3"
)

func TestShouldReportAbsentKeyAsMissing(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		exists, err := store.Exists(ws, "never-inserted")
		assert.NoError(t, err)
		assert.False(t, exists)

		metadata, err := store.Get(ws, "never-inserted")
		assert.Nil(t, metadata)
		assert.Equal(t, ErrMetadataNotFound, err)
	})
}

func TestShouldUpsertAndRetrieveMetadata(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		err := store.Upsert(ws, "file1", "image/png", 1024)
		require.NoError(t, err)

		exists, err := store.Exists(ws, "file1")
		assert.NoError(t, err)
		assert.True(t, exists)

		metadata, err := store.Get(ws, "file1")
		require.NoError(t, err)
		assert.Equal(t, ws, metadata.WorkspaceID)
		assert.Equal(t, "file1", metadata.FileID)
		assert.Equal(t, "image/png", metadata.FileType)
		assert.Equal(t, int64(1024), metadata.FileSize)
	})
}

func TestShouldReplaceValuesOnRepeatedUpsert(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		require.NoError(t, store.Upsert(ws, "file1", "image/png", 1024))
		require.NoError(t, store.Upsert(ws, "file1", "text/plain", 99))

		metadata, err := store.Get(ws, "file1")
		require.NoError(t, err)
		assert.Equal(t, "text/plain", metadata.FileType)
		assert.Equal(t, int64(99), metadata.FileSize)

		all, err := store.ListByWorkspace(ws)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestShouldBulkInsertUnderDerivedKeys(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		inserted, err := store.BulkInsert(ws, []BulkInsertEntry{
			{ObjectID: "obj1", FileID: "abc", FileType: "image/png", FileSize: 10},
			{ObjectID: "obj1", FileID: "def", FileType: "image/jpeg", FileSize: 20},
			{ObjectID: "obj2", FileID: "abc", FileType: "text/plain", FileSize: 30},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), inserted)

		metadata, err := store.Get(ws, "obj1_abc")
		require.NoError(t, err)
		assert.Equal(t, "image/png", metadata.FileType)
		assert.Equal(t, int64(10), metadata.FileSize)

		for _, fileID := range []string{"obj1_def", "obj2_abc"} {
			_, err := store.Get(ws, fileID)
			assert.NoError(t, err)
		}
	})
}

func TestShouldNotClobberExistingRowOnBulkInsert(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		require.NoError(t, store.Upsert(ws, "obj1_abc", "image/png", 1024))

		inserted, err := store.BulkInsert(ws, []BulkInsertEntry{
			{ObjectID: "obj1", FileID: "abc", FileType: "text/plain", FileSize: 1},
			{ObjectID: "obj1", FileID: "new", FileType: "text/plain", FileSize: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), inserted)

		metadata, err := store.Get(ws, "obj1_abc")
		require.NoError(t, err)
		assert.Equal(t, "image/png", metadata.FileType)
		assert.Equal(t, int64(1024), metadata.FileSize)
	})
}

func TestShouldBulkInsertNothingForEmptyBatch(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		inserted, err := store.BulkInsert(uuid.New(), nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), inserted)
	})
}

func TestShouldComputeTotalUsage(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		require.NoError(t, store.Upsert(ws, "a", "text/plain", 10))
		require.NoError(t, store.Upsert(ws, "b", "text/plain", 20))
		require.NoError(t, store.Upsert(ws, "c", "text/plain", 30))

		usage, err := store.TotalUsage(ws)
		assert.NoError(t, err)
		assert.Equal(t, uint64(60), usage)
	})
}

func TestShouldReportZeroUsageForEmptyWorkspace(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		usage, err := store.TotalUsage(uuid.New())
		assert.NoError(t, err)
		assert.Equal(t, uint64(0), usage)
	})
}

func TestShouldDeleteMetadata(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()

		require.NoError(t, store.Upsert(ws, "file1", "image/png", 1024))
		require.NoError(t, store.Delete(nil, ws, "file1"))

		exists, err := store.Exists(ws, "file1")
		assert.NoError(t, err)
		assert.False(t, exists)

		_, err = store.Get(ws, "file1")
		assert.Equal(t, ErrMetadataNotFound, err)
	})
}

func TestShouldIgnoreDeleteOfAbsentKey(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		err := store.Delete(nil, uuid.New(), "never-inserted")
		assert.NoError(t, err)
	})
}

func TestShouldDeleteWithinCallerTransaction(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()
		require.NoError(t, store.Upsert(ws, "file1", "image/png", 1024))

		tx, err := store.db.Beginx()
		require.NoError(t, err)
		require.NoError(t, store.Delete(tx, ws, "file1"))
		require.NoError(t, tx.Rollback())

		exists, err := store.Exists(ws, "file1")
		assert.NoError(t, err)
		assert.True(t, exists)

		tx, err = store.db.Beginx()
		require.NoError(t, err)
		require.NoError(t, store.Delete(tx, ws, "file1"))
		require.NoError(t, tx.Commit())

		exists, err = store.Exists(ws, "file1")
		assert.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestShouldListOnlyOwnWorkspaceRows(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		ws := uuid.New()
		other := uuid.New()

		require.NoError(t, store.Upsert(ws, "file1", "image/png", 10))
		require.NoError(t, store.Upsert(ws, "file2", "image/jpeg", 20))
		require.NoError(t, store.Upsert(other, "file3", "text/plain", 30))

		all, err := store.ListByWorkspace(ws)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		for _, metadata := range all {
			assert.Equal(t, ws, metadata.WorkspaceID)
		}

		fileIDs, err := store.ListIDsByWorkspace(ws)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"file1", "file2"}, fileIDs)
	})
}

func TestShouldListNothingForEmptyWorkspace(t *testing.T) {
	withStore(t, func(store *SQLMetadataStore) {
		all, err := store.ListByWorkspace(uuid.New())
		assert.NoError(t, err)
		assert.Empty(t, all)

		fileIDs, err := store.ListIDsByWorkspace(uuid.New())
		assert.NoError(t, err)
		assert.Empty(t, fileIDs)
	})
}

func TestShouldRejectUnknownDialect(t *testing.T) {
	store, err := NewSQLMetadataStore(sqlx.NewDb(nil, "oracle"))
	assert.Nil(t, store)
	assert.Error(t, err)
}

func withStore(t *testing.T, testFunc func(store *SQLMetadataStore)) {
	url, dbPath := persistence.TestDBURL()
	defer persistence.ResetTestDB(dbPath)

	db, err := persistence.CreateDBConnection(url)
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLMetadataStore(db)
	require.NoError(t, err)

	testFunc(store)
}
