package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StreamMappingRow represents a stream mapping record from the database.
type StreamMappingRow struct {
	UniqueID       string
	ProviderFileID string
	CreatedAt      time.Time
}

// InsertMapping records a token -> provider file id mapping. The insert is
// idempotent: a conflicting row (same token or same file id) leaves the
// existing mapping untouched and is not an error.
func (db *DB) InsertMapping(uniqueID, providerFileID string) error {
	query := `
		INSERT INTO stream_mappings (unique_id, provider_file_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`

	if _, err := db.Exec(query, uniqueID, providerFileID); err != nil {
		return fmt.Errorf("failed to insert stream mapping: %w", err)
	}

	return nil
}

// GetMappingByToken loads the mapping for a public stream token.
// Returns (nil, nil) when no mapping exists.
func (db *DB) GetMappingByToken(uniqueID string) (*StreamMappingRow, error) {
	query := `
		SELECT unique_id, provider_file_id, created_at
		FROM stream_mappings
		WHERE unique_id = ?
	`

	var row StreamMappingRow
	err := db.QueryRow(query, uniqueID).Scan(&row.UniqueID, &row.ProviderFileID, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stream mapping: %w", err)
	}

	return &row, nil
}

// GetMappingByFileID loads the mapping for a provider file id.
// Returns (nil, nil) when no mapping exists.
func (db *DB) GetMappingByFileID(providerFileID string) (*StreamMappingRow, error) {
	query := `
		SELECT unique_id, provider_file_id, created_at
		FROM stream_mappings
		WHERE provider_file_id = ?
	`

	var row StreamMappingRow
	err := db.QueryRow(query, providerFileID).Scan(&row.UniqueID, &row.ProviderFileID, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stream mapping: %w", err)
	}

	return &row, nil
}
