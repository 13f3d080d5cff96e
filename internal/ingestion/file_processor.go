package ingestion

import (
	"context"
	"path/filepath"

	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/geo-ambiental/seia-sync/internal/normalizer"
	"github.com/geo-ambiental/seia-sync/internal/parser"
	"github.com/geo-ambiental/seia-sync/pkg/checksum"
	"github.com/sirupsen/logrus"
)

// FileProcessor turns one extracted file into merged rows and keeps the
// file ledger in step. Ledger failures are logged and never fail the file.
type FileProcessor struct {
	source parser.TabularSource
	store  Store
	ledger Ledger
	logger logrus.FieldLogger
}

func NewFileProcessor(source parser.TabularSource, store Store, ledger Ledger, logger logrus.FieldLogger) *FileProcessor {
	return &FileProcessor{
		source: source,
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

// Process reads, normalizes, stages and merges path. On failure the returned
// result is marked failed and the error is a *models.RangeError.
func (fp *FileProcessor) Process(ctx context.Context, runID string, r models.DateRange, path string) (models.RangeResult, error) {
	result := models.RangeResult{Range: r, File: path}
	log := fp.logger.WithField("file", filepath.Base(path))

	sum, err := checksum.GetFileChecksum(path)
	if err != nil {
		log.WithError(err).Warn("Could not compute file checksum")
	} else if processed, err := fp.ledger.IsFileAlreadyProcessed(ctx, sum); err != nil {
		log.WithError(err).Warn("Could not check file ledger")
	} else if processed {
		log.Info("File was merged before, merging again to refresh it")
	}

	fileID, err := fp.ledger.InsertFileRecord(ctx, runID, filepath.Base(path), sum, r, database.FileStatusProcessing)
	if err != nil {
		log.WithError(err).Warn("Failed to insert file record")
		fileID = 0
	}

	fail := func(stage, message string, err error) (models.RangeResult, error) {
		rangeErr := &models.RangeError{Range: r, Stage: stage, Message: message, Err: err}
		result.Status = models.RangeFailed
		result.Err = rangeErr
		fp.closeRecord(ctx, log, fileID, database.FileStatusFatal, 0, []string{rangeErr.Error()})
		return result, rangeErr
	}

	batch, err := fp.source.Read(path)
	if err != nil {
		return fail("read", "could not read extracted file", err)
	}

	records, stats := normalizer.Normalize(batch)
	log.Infof("Normalized %d rows into %d projects (%d duplicates, %d superseded)",
		stats.Input, stats.Output, stats.Duplicates, stats.Superseded)

	if len(records) == 0 {
		log.Info("File has no rows to merge")
		result.Status = models.RangeEmpty
		fp.closeRecord(ctx, log, fileID, database.FileStatusDone, 0, nil)
		return result, nil
	}

	handle, err := fp.store.Stage(ctx, records)
	if err != nil {
		return fail("stage", "could not stage projects", err)
	}

	merged, err := fp.store.Merge(ctx, handle)
	if err != nil {
		return fail("merge", "could not merge staged projects", err)
	}

	result.Status = models.RangeMerged
	result.Rows = len(records)
	result.Inserted = merged.Inserted
	result.Updated = merged.Updated
	log.Infof("Merged %d projects: %d inserted, %d updated", result.Rows, merged.Inserted, merged.Updated)

	fp.closeRecord(ctx, log, fileID, database.FileStatusDone, result.Rows, nil)
	return result, nil
}

func (fp *FileProcessor) closeRecord(ctx context.Context, log logrus.FieldLogger, fileID int, status string, rows int, errs []string) {
	if fileID == 0 {
		return
	}
	var payload any
	if len(errs) > 0 {
		payload = errs
	}
	if err := fp.ledger.UpdateFileStatus(ctx, fileID, status, rows, payload); err != nil {
		log.WithError(err).Warnf("Failed to update status for file record %d", fileID)
	}
}
