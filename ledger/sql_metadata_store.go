package ledger

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("logger", "usage_ledger")

// SQLMetadataStore persists blob metadata in a relational store.
// It holds no state beyond the injected connection pool; the store's
// row-level locking and conflict clauses provide all concurrency control.
type SQLMetadataStore struct {
	db      *sqlx.DB
	dialect string
}

// NewSQLMetadataStore creates a metadata store on an existing connection.
// The dialect is taken from the driver the connection was opened with.
func NewSQLMetadataStore(db *sqlx.DB) (*SQLMetadataStore, error) {
	dialect := db.DriverName()
	switch dialect {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("Unsupported db driver %s", dialect)
	}

	log.Info("Creating SQL metadata store")
	return &SQLMetadataStore{
		db:      db,
		dialect: dialect,
	}, nil
}

// Exists implements MetadataStore
func (s *SQLMetadataStore) Exists(workspaceID uuid.UUID, fileID string) (bool, error) {
	span := opentracing.StartSpan("sql_blob_metadata_exists")
	defer span.Finish()

	var exists bool
	err := s.db.Get(&exists, s.db.Rebind(
		"SELECT EXISTS (SELECT 1 FROM blob_metadata WHERE workspace_id = ? AND file_id = ?)"),
		workspaceID, fileID)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithField("file_id", fileID).WithError(err).Errorf("Error probing blob metadata in db")
		return false, err
	}
	return exists, nil
}

// Upsert implements MetadataStore
func (s *SQLMetadataStore) Upsert(workspaceID uuid.UUID, fileID string, fileType string, fileSize int64) error {
	span := opentracing.StartSpan("sql_upsert_blob_metadata")
	defer span.Finish()

	query := `INSERT INTO blob_metadata (workspace_id, file_id, file_type, file_size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id, file_id) DO UPDATE SET
			file_type = excluded.file_type,
			file_size = excluded.file_size`
	if s.dialect == "mysql" {
		query = `INSERT INTO blob_metadata (workspace_id, file_id, file_type, file_size)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				file_type = VALUES(file_type),
				file_size = VALUES(file_size)`
	}

	res, err := s.db.Exec(s.db.Rebind(query), workspaceID, fileID, fileType, fileSize)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithField("file_id", fileID).WithError(err).Errorf("Error upserting blob metadata into db")
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	// MySQL reports 2 affected rows when the conflict clause updated an
	// existing row. Any other count is a bookkeeping mismatch, surfaced to
	// operators but not to the caller: the statement still took effect.
	if n != 1 && !(s.dialect == "mysql" && n == 2) {
		upsertRowCountAnomalies.Inc()
		log.WithField("workspace_id", workspaceID).WithField("file_id", fileID).WithField("rows_affected", n).Error("Unexpected affected-row count upserting blob metadata")
	}
	return nil
}

// BulkInsert implements MetadataStore.
// The whole batch is one statement: either array binding (postgres) or a
// single multi-row insert. Keys that already exist are skipped, never
// updated, so a bulk load cannot clobber a concurrent per-item upsert.
func (s *SQLMetadataStore) BulkInsert(workspaceID uuid.UUID, entries []BulkInsertEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	span := opentracing.StartSpan("sql_bulk_insert_blob_metadata")
	defer span.Finish()

	var res sql.Result
	var err error
	switch s.dialect {
	case "postgres":
		fileIDs := make([]string, 0, len(entries))
		fileTypes := make([]string, 0, len(entries))
		fileSizes := make([]int64, 0, len(entries))
		for _, entry := range entries {
			fileIDs = append(fileIDs, BulkKey(entry.ObjectID, entry.FileID))
			fileTypes = append(fileTypes, entry.FileType)
			fileSizes = append(fileSizes, entry.FileSize)
		}
		res, err = s.db.Exec(
			`INSERT INTO blob_metadata (workspace_id, file_id, file_type, file_size)
			SELECT $1::uuid, unnest($2::text[]), unnest($3::text[]), unnest($4::int8[])
			ON CONFLICT DO NOTHING`,
			workspaceID, pq.Array(fileIDs), pq.Array(fileTypes), pq.Array(fileSizes))
	default:
		query, args := s.bulkInsertValues(workspaceID, entries)
		res, err = s.db.Exec(query, args...)
	}
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithField("entries", len(entries)).WithError(err).Errorf("Error bulk inserting blob metadata into db")
		return 0, err
	}

	return res.RowsAffected()
}

// bulkInsertValues builds the single multi-row insert used by the
// dialects without array binding.
func (s *SQLMetadataStore) bulkInsertValues(workspaceID uuid.UUID, entries []BulkInsertEntry) (string, []interface{}) {
	rows := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*4)
	for _, entry := range entries {
		rows = append(rows, "(?, ?, ?, ?)")
		args = append(args, workspaceID, BulkKey(entry.ObjectID, entry.FileID), entry.FileType, entry.FileSize)
	}

	query := "INSERT INTO blob_metadata (workspace_id, file_id, file_type, file_size) VALUES " +
		strings.Join(rows, ", ") + " ON CONFLICT DO NOTHING"
	if s.dialect == "mysql" {
		query = "INSERT IGNORE INTO blob_metadata (workspace_id, file_id, file_type, file_size) VALUES " +
			strings.Join(rows, ", ")
	}
	return s.db.Rebind(query), args
}

// Delete implements MetadataStore.
// The delete runs on tx when one is supplied so callers can commit it
// together with related bookkeeping; it never opens a transaction itself.
func (s *SQLMetadataStore) Delete(tx sqlx.Execer, workspaceID uuid.UUID, fileID string) error {
	span := opentracing.StartSpan("sql_delete_blob_metadata")
	defer span.Finish()

	if tx == nil {
		tx = s.db
	}
	res, err := tx.Exec(s.db.Rebind(
		"DELETE FROM blob_metadata WHERE workspace_id = ? AND file_id = ?"),
		workspaceID, fileID)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithField("file_id", fileID).WithError(err).Errorf("Error deleting blob metadata from db")
		return err
	}

	if n, err := res.RowsAffected(); err == nil {
		log.WithField("workspace_id", workspaceID).WithField("file_id", fileID).WithField("rows_affected", n).Info("Deleted blob metadata")
	}
	return nil
}

// Get implements MetadataStore
func (s *SQLMetadataStore) Get(workspaceID uuid.UUID, fileID string) (*BlobMetadata, error) {
	span := opentracing.StartSpan("sql_get_blob_metadata")
	defer span.Finish()

	metadata := &BlobMetadata{}
	err := s.db.Get(metadata, s.db.Rebind(
		"SELECT workspace_id, file_id, file_type, file_size FROM blob_metadata WHERE workspace_id = ? AND file_id = ?"),
		workspaceID, fileID)
	if err == sql.ErrNoRows {
		return nil, ErrMetadataNotFound
	}
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithField("file_id", fileID).WithError(err).Errorf("Error reading blob metadata from db")
		return nil, err
	}
	return metadata, nil
}

// ListByWorkspace implements MetadataStore
func (s *SQLMetadataStore) ListByWorkspace(workspaceID uuid.UUID) ([]*BlobMetadata, error) {
	span := opentracing.StartSpan("sql_list_blob_metadata")
	defer span.Finish()

	var all []*BlobMetadata
	err := s.db.Select(&all, s.db.Rebind(
		"SELECT workspace_id, file_id, file_type, file_size FROM blob_metadata WHERE workspace_id = ?"),
		workspaceID)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithError(err).Errorf("Error listing blob metadata from db")
		return nil, err
	}
	return all, nil
}

// ListIDsByWorkspace implements MetadataStore
func (s *SQLMetadataStore) ListIDsByWorkspace(workspaceID uuid.UUID) ([]string, error) {
	span := opentracing.StartSpan("sql_list_blob_ids")
	defer span.Finish()

	var fileIDs []string
	err := s.db.Select(&fileIDs, s.db.Rebind(
		"SELECT file_id FROM blob_metadata WHERE workspace_id = ?"),
		workspaceID)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithError(err).Errorf("Error listing blob ids from db")
		return nil, err
	}
	return fileIDs, nil
}

// TotalUsage implements MetadataStore.
// The store sums in its widest numeric type (postgres returns numeric
// here); the result is converted to uint64 once, at this boundary, and
// clamped to 0 when there are no rows or the sum is unrepresentable.
func (s *SQLMetadataStore) TotalUsage(workspaceID uuid.UUID) (uint64, error) {
	span := opentracing.StartSpan("sql_workspace_usage_size")
	defer span.Finish()

	var sum sql.NullString
	err := s.db.Get(&sum, s.db.Rebind(
		"SELECT SUM(file_size) FROM blob_metadata WHERE workspace_id = ?"),
		workspaceID)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithError(err).Errorf("Error summing blob sizes in db")
		return 0, err
	}
	if !sum.Valid {
		return 0, nil
	}

	total, err := decimal.NewFromString(sum.String)
	if err != nil {
		log.WithField("workspace_id", workspaceID).WithField("sum", sum.String).WithError(err).Errorf("Error decoding blob size sum")
		return 0, err
	}
	i := total.BigInt()
	if i.Sign() < 0 || !i.IsUint64() {
		return 0, nil
	}
	return i.Uint64(), nil
}
