package ingestion

import (
	"context"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/extractor"
	"github.com/geo-ambiental/seia-sync/internal/metrics"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/geo-ambiental/seia-sync/internal/runlog"
)

type Store interface {
	CurrentWatermark(ctx context.Context) (time.Time, bool, error)
	Stage(ctx context.Context, records []models.CanonicalRecord) (database.StagingHandle, error)
	Merge(ctx context.Context, handle database.StagingHandle) (database.MergeResult, error)
}

type Ledger interface {
	InsertFileRecord(ctx context.Context, runID, fileName, checksum string, r models.DateRange, status string) (int, error)
	UpdateFileStatus(ctx context.Context, fileID int, status string, rows int, errors any) error
	IsFileAlreadyProcessed(ctx context.Context, checksum string) (bool, error)
}

// Fetcher is one browser session able to extract ranges.
type Fetcher interface {
	ClearDownloads() error
	Fetch(ctx context.Context, r models.DateRange) (extractor.Outcome, error)
	Close() error
}

type SessionOpener interface {
	Open(ctx context.Context) (Fetcher, error)
}

// OpenerFunc adapts a function to SessionOpener.
type OpenerFunc func(ctx context.Context) (Fetcher, error)

func (f OpenerFunc) Open(ctx context.Context) (Fetcher, error) {
	return f(ctx)
}

type Processor interface {
	Process(ctx context.Context, runID string, r models.DateRange, path string) (models.RangeResult, error)
}

type RunLog interface {
	Export(ctx context.Context, uploader runlog.Uploader) (string, error)
}

type MetricsPusher interface {
	Push(ctx context.Context, recorder *metrics.Recorder) error
}
