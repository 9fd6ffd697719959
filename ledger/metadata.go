package ledger

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BlobMetadata describes a blob tracked by the usage ledger.
// The blob bytes themselves live in a remote store; the ledger only
// accounts for their existence, declared type and size.
type BlobMetadata struct {
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	FileID      string    `json:"file_id" db:"file_id"`
	FileType    string    `json:"file_type" db:"file_type"`
	FileSize    int64     `json:"file_size" db:"file_size"`
}

// BulkInsertEntry is one row of a bulk load. The ledger key is derived
// from ObjectID and FileID, see BulkKey.
type BulkInsertEntry struct {
	ObjectID string `json:"object_id"`
	FileID   string `json:"file_id"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// BulkKey derives the ledger file ID for a blob addressed via an
// object plus sub-path scheme. Bulk-inserted rows are stored under this
// key and must be read back with it.
func BulkKey(objectID string, fileID string) string {
	return objectID + "_" + fileID
}

// MetadataStore is an abstraction for blob usage accounting.
// Rows are keyed by (workspace, file ID); the backing store's conflict
// resolution is the only arbiter between concurrent writers.
type MetadataStore interface {
	// Exists reports whether a row exists for the exact key
	Exists(workspaceID uuid.UUID, fileID string) (bool, error)

	// Upsert inserts a row, or replaces the type and size of an existing one
	Upsert(workspaceID uuid.UUID, fileID string, fileType string, fileSize int64) error

	// BulkInsert loads entries under their derived keys, skipping keys that
	// already exist, and returns the number of rows actually inserted
	BulkInsert(workspaceID uuid.UUID, entries []BulkInsertEntry) (int64, error)

	// Delete removes the row for the key if present. A caller-managed
	// transaction may be passed as tx so the delete commits or aborts with
	// related writes; a nil tx runs the delete on its own.
	Delete(tx sqlx.Execer, workspaceID uuid.UUID, fileID string) error

	// Get returns the row for the exact key, or ErrMetadataNotFound
	Get(workspaceID uuid.UUID, fileID string) (*BlobMetadata, error)

	// ListByWorkspace returns all rows of a workspace, order unspecified
	ListByWorkspace(workspaceID uuid.UUID) ([]*BlobMetadata, error)

	// ListIDsByWorkspace returns the file IDs of all rows of a workspace
	ListIDsByWorkspace(workspaceID uuid.UUID) ([]string, error)

	// TotalUsage returns the summed file size of a workspace in bytes
	TotalUsage(workspaceID uuid.UUID) (uint64, error)
}
