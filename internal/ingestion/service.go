package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/extractor"
	"github.com/geo-ambiental/seia-sync/internal/metrics"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/geo-ambiental/seia-sync/internal/planner"
	"github.com/geo-ambiental/seia-sync/internal/runlog"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DefaultWatermark time.Time
	Location         *time.Location
}

type Dependencies struct {
	Store     Store
	Ledger    Ledger
	Opener    SessionOpener
	Processor Processor
	RunLog    RunLog
	Uploader  runlog.Uploader
	Recorder  *metrics.Recorder
	Pusher    MetricsPusher
}

type IngestionService struct {
	deps   Dependencies
	config Config
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewIngestionService(deps Dependencies, cfg Config, logger logrus.FieldLogger) *IngestionService {
	return &IngestionService{
		deps:   deps,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Run brings the destination table up to date with the registry. It returns
// an error only when the run could not proceed at all; failed ranges are in
// the report. The session is closed, metrics pushed and the run log exported
// on every path.
func (s *IngestionService) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.WithField("run_id", report.RunID)
	log.Info("Starting SEIA sync run")

	fetcher, err := s.run(ctx, report, log)
	s.finalize(ctx, report, log, fetcher, err)

	return report, err
}

func (s *IngestionService) run(ctx context.Context, report *models.RunReport, log logrus.FieldLogger) (Fetcher, error) {
	watermark, ok, err := s.deps.Store.CurrentWatermark(ctx)
	if err != nil {
		log.WithError(err).Error("Could not read watermark")
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	if !ok {
		watermark = s.config.DefaultWatermark
		log.Infof("Destination table is empty, starting from %s", watermark.Format("2006-01-02"))
	}

	today := planner.Date(s.now().In(s.config.Location))
	report.Watermark = watermark
	report.Today = today
	s.deps.Recorder.ObserveWatermark(watermark)
	log.Infof("Watermark: %s", watermark.Format("2006-01-02"))
	log.Infof("Today: %s", today.Format("2006-01-02"))

	ranges := planner.Plan(watermark, today)
	if len(ranges) == 0 {
		log.Info("Everything is up to date, no new ranges")
		return nil, nil
	}
	log.Infof("Planned %d monthly ranges", len(ranges))

	fetcher, err := s.deps.Opener.Open(ctx)
	if err != nil {
		log.WithError(err).Error("Could not acquire browser session")
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}

	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Errorf("Run interrupted before range %s", r)
			return fetcher, fmt.Errorf("run interrupted after %d of %d ranges: %w", i, len(ranges), err)
		}

		started := s.now()
		result := s.processRange(ctx, fetcher, report.RunID, r)
		report.Ranges = append(report.Ranges, result)
		s.deps.Recorder.ObserveRange(result, s.now().Sub(started))
	}

	return fetcher, nil
}

func (s *IngestionService) processRange(ctx context.Context, fetcher Fetcher, runID string, r models.DateRange) models.RangeResult {
	log := s.logger.WithField("run_id", runID).WithField("range", r.String())
	log.Infof("Processing range %s", r)

	fail := func(stage, message string, err error) models.RangeResult {
		rangeErr := &models.RangeError{Range: r, Stage: stage, Message: message, Err: err}
		log.WithError(err).Errorf("Range failed at %s: %s", stage, message)
		return models.RangeResult{Range: r, Status: models.RangeFailed, Err: rangeErr}
	}

	if err := fetcher.ClearDownloads(); err != nil {
		return fail("extract", "could not clear download directory", err)
	}

	outcome, err := fetcher.Fetch(ctx, r)
	if err != nil {
		message := "extraction failed"
		if errors.Is(err, extractor.ErrTimedOut) {
			message = "extraction timed out"
		}
		return fail("extract", message, err)
	}

	if outcome.State == extractor.StateNoResults {
		log.Warn("No results for range, skipping")
		if _, err := s.deps.Ledger.InsertFileRecord(ctx, runID, "", "", r, database.FileStatusNoResults); err != nil {
			log.WithError(err).Warn("Failed to insert file record")
		}
		return models.RangeResult{Range: r, Status: models.RangeNoResults}
	}

	result, err := s.deps.Processor.Process(ctx, runID, r, outcome.File)
	if err != nil {
		log.WithError(err).Error("Range failed")
	}
	return result
}

// LoadFile merges a local spreadsheet without the browser. It goes through
// the same finalization as Run.
func (s *IngestionService) LoadFile(ctx context.Context, path string) (*models.RunReport, error) {
	report := &models.RunReport{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.WithField("run_id", report.RunID)
	log.Infof("Loading %s", path)

	started := s.now()
	result, err := s.deps.Processor.Process(ctx, report.RunID, models.DateRange{}, path)
	report.Ranges = append(report.Ranges, result)
	s.deps.Recorder.ObserveRange(result, s.now().Sub(started))

	if err != nil {
		err = fmt.Errorf("failed to load %s: %w", path, err)
		log.WithError(err).Error("Manual load failed")
	}
	s.finalize(ctx, report, log, nil, err)

	return report, err
}

func (s *IngestionService) finalize(ctx context.Context, report *models.RunReport, log logrus.FieldLogger, fetcher Fetcher, runErr error) {
	// cleanup must run even when the run was cancelled
	ctx = context.WithoutCancel(ctx)

	if fetcher != nil {
		if err := fetcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser session")
		}
	}

	counts := make(map[models.RangeStatus]int)
	for _, r := range report.Ranges {
		counts[r.Status]++
	}
	log.Infof("Run finished: %d ranges, %d merged, %d empty, %d without results, %d failed",
		len(report.Ranges), counts[models.RangeMerged], counts[models.RangeEmpty], counts[models.RangeNoResults], counts[models.RangeFailed])
	if runErr != nil {
		log.WithError(runErr).Error("Run aborted")
	} else if report.Failed() == 0 {
		s.deps.Recorder.MarkSuccess(s.now())
	}

	if err := s.deps.Pusher.Push(ctx, s.deps.Recorder); err != nil {
		log.WithError(err).Warn("Failed to push metrics")
	}

	log.Info("Uploading run log")
	key, err := s.deps.RunLog.Export(ctx, s.deps.Uploader)
	if err != nil {
		log.WithError(err).Error("Failed to export run log")
		return
	}
	report.LogKey = key
	log.Infof("Run log uploaded to %s", key)
}
