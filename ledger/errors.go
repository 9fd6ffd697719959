package ledger

import (
	"errors"
)

// ErrMetadataNotFound is returned by Get when no row exists for the key.
// All other store errors pass through to the caller uninterpreted.
var ErrMetadataNotFound = errors.New("Blob metadata not found")
