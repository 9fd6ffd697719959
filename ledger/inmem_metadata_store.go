package ledger

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type inMemMetadataStore struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]map[string]BlobMetadata
}

// NewInMemMetadataStore creates an in-mem metadata store - use this _only_ for testing
func NewInMemMetadataStore() MetadataStore {
	return &inMemMetadataStore{workspaces: make(map[uuid.UUID]map[string]BlobMetadata)}
}

func (s *inMemMetadataStore) rows(workspaceID uuid.UUID) map[string]BlobMetadata {
	rows, ok := s.workspaces[workspaceID]
	if !ok {
		rows = make(map[string]BlobMetadata)
		s.workspaces[workspaceID] = rows
	}
	return rows
}

// Exists implements MetadataStore
func (s *inMemMetadataStore) Exists(workspaceID uuid.UUID, fileID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows(workspaceID)[fileID]
	return ok, nil
}

// Upsert implements MetadataStore
func (s *inMemMetadataStore) Upsert(workspaceID uuid.UUID, fileID string, fileType string, fileSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows(workspaceID)[fileID] = BlobMetadata{
		WorkspaceID: workspaceID,
		FileID:      fileID,
		FileType:    fileType,
		FileSize:    fileSize,
	}
	return nil
}

// BulkInsert implements MetadataStore
func (s *inMemMetadataStore) BulkInsert(workspaceID uuid.UUID, entries []BulkInsertEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows(workspaceID)
	var inserted int64
	for _, entry := range entries {
		fileID := BulkKey(entry.ObjectID, entry.FileID)
		if _, ok := rows[fileID]; ok {
			continue
		}
		rows[fileID] = BlobMetadata{
			WorkspaceID: workspaceID,
			FileID:      fileID,
			FileType:    entry.FileType,
			FileSize:    entry.FileSize,
		}
		inserted++
	}
	return inserted, nil
}

// Delete implements MetadataStore. The execer is ignored, there is no
// transaction to join in memory.
func (s *inMemMetadataStore) Delete(tx sqlx.Execer, workspaceID uuid.UUID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows(workspaceID), fileID)
	return nil
}

// Get implements MetadataStore
func (s *inMemMetadataStore) Get(workspaceID uuid.UUID, fileID string) (*BlobMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata, ok := s.rows(workspaceID)[fileID]
	if !ok {
		return nil, ErrMetadataNotFound
	}
	return &metadata, nil
}

// ListByWorkspace implements MetadataStore
func (s *inMemMetadataStore) ListByWorkspace(workspaceID uuid.UUID) ([]*BlobMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*BlobMetadata
	for _, metadata := range s.rows(workspaceID) {
		metadata := metadata
		all = append(all, &metadata)
	}
	return all, nil
}

// ListIDsByWorkspace implements MetadataStore
func (s *inMemMetadataStore) ListIDsByWorkspace(workspaceID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fileIDs []string
	for fileID := range s.rows(workspaceID) {
		fileIDs = append(fileIDs, fileID)
	}
	return fileIDs, nil
}

// TotalUsage implements MetadataStore
func (s *inMemMetadataStore) TotalUsage(workspaceID uuid.UUID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total uint64
	for _, metadata := range s.rows(workspaceID) {
		if metadata.FileSize > 0 {
			total += uint64(metadata.FileSize)
		}
	}
	return total, nil
}
