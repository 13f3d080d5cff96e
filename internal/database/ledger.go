package database

import (
	"context"
	"fmt"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	FileStatusProcessing = "PROCESSING"
	FileStatusDone       = "DONE"
	FileStatusFatal      = "FATAL"
	FileStatusNoResults  = "NO_RESULTS"
)

// FileLedger keeps one row per range attempt in file_records.
type FileLedger struct {
	dbpool *pgxpool.Pool
	tables Tables
}

func NewFileLedger(pool *pgxpool.Pool, tables Tables) *FileLedger {
	return &FileLedger{dbpool: pool, tables: tables}
}

// InsertFileRecord opens a ledger row. A zero range (manual loads) is stored
// as NULL bounds.
func (l *FileLedger) InsertFileRecord(ctx context.Context, runID, fileName, checksum string, r models.DateRange, status string) (int, error) {
	query := fmt.Sprintf(`
	INSERT INTO %s (run_id, file_name, processed_at, status, checksum, range_start, range_end)
	VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7)
	RETURNING id;`, l.tables.fileRecords())

	var from, to *time.Time
	if !r.From.IsZero() {
		from, to = &r.From, &r.To
	}

	var fileID int
	err := l.dbpool.QueryRow(ctx, query, runID, fileName, time.Now().UTC(), status, checksum, from, to).Scan(&fileID)
	if err != nil {
		return 0, fmt.Errorf("error inserting file record: %w", err)
	}

	return fileID, nil
}

// UpdateFileStatus closes a ledger row. errors is stored as jsonb.
func (l *FileLedger) UpdateFileStatus(ctx context.Context, fileID int, status string, rows int, errors any) error {
	query := fmt.Sprintf(`
	UPDATE %s
	SET status = $1,
		row_count = $2,
		errors = $3
	WHERE id = $4;`, l.tables.fileRecords())

	_, err := l.dbpool.Exec(ctx, query, status, rows, errors, fileID)
	if err != nil {
		return fmt.Errorf("error updating file status: %w", err)
	}

	return nil
}

func (l *FileLedger) IsFileAlreadyProcessed(ctx context.Context, checksum string) (bool, error) {
	query := fmt.Sprintf(`
	SELECT EXISTS (
		SELECT 1 FROM %s WHERE checksum = $1 AND status = 'DONE'
	);`, l.tables.fileRecords())

	var exists bool
	if err := l.dbpool.QueryRow(ctx, query, checksum).Scan(&exists); err != nil {
		return false, fmt.Errorf("error finding file record by checksum: %w", err)
	}

	return exists, nil
}
