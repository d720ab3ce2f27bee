package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hearthplan/hearthplan/internal/models"
)

// MergeRecordRepository persists the merge audit trail. Records are
// append-only; merges are never undone.
type MergeRecordRepository struct {
	db *sql.DB
}

// NewMergeRecordRepository creates a merge record repository.
func NewMergeRecordRepository(db *sql.DB) *MergeRecordRepository {
	return &MergeRecordRepository{db: db}
}

// InsertRecords writes a batch of merge records in one transaction.
func (r *MergeRecordRepository) InsertRecords(ctx context.Context, records []models.MergeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO merge_records (
			id, primary_fingerprint, merged_fingerprint, merged_snapshot,
			similarity, merge_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare merge record insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		snapshot, err := json.Marshal(record.MergedSnapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal merged snapshot: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			record.ID,
			record.PrimaryFingerprint,
			record.MergedFingerprint,
			snapshot,
			record.Similarity,
			record.MergeType,
			record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert merge record: %w", err)
		}
	}

	return tx.Commit()
}

// ListByPrimary returns the merge history feeding one canonical event,
// newest first.
func (r *MergeRecordRepository) ListByPrimary(ctx context.Context, fingerprint string) ([]models.MergeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, primary_fingerprint, merged_fingerprint, merged_snapshot,
		       similarity, merge_type, created_at
		FROM merge_records
		WHERE primary_fingerprint = $1
		ORDER BY created_at DESC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge records: %w", err)
	}
	defer rows.Close()

	var records []models.MergeRecord
	for rows.Next() {
		var record models.MergeRecord
		var snapshot []byte

		err := rows.Scan(
			&record.ID,
			&record.PrimaryFingerprint,
			&record.MergedFingerprint,
			&snapshot,
			&record.Similarity,
			&record.MergeType,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge record: %w", err)
		}

		if err := json.Unmarshal(snapshot, &record.MergedSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal merged snapshot: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
