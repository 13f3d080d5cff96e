package ingestion

import (
	"context"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/extractor"
	"github.com/geo-ambiental/seia-sync/internal/metrics"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CurrentWatermark(ctx context.Context) (time.Time, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *MockStore) Stage(ctx context.Context, records []models.CanonicalRecord) (database.StagingHandle, error) {
	args := m.Called(ctx, records)
	return args.Get(0).(database.StagingHandle), args.Error(1)
}

func (m *MockStore) Merge(ctx context.Context, handle database.StagingHandle) (database.MergeResult, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(database.MergeResult), args.Error(1)
}

// MockLedger is a mock implementation of the Ledger interface.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) InsertFileRecord(ctx context.Context, runID, fileName, checksum string, r models.DateRange, status string) (int, error) {
	args := m.Called(ctx, runID, fileName, checksum, r, status)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) UpdateFileStatus(ctx context.Context, fileID int, status string, rows int, errors any) error {
	args := m.Called(ctx, fileID, status, rows, errors)
	return args.Error(0)
}

func (m *MockLedger) IsFileAlreadyProcessed(ctx context.Context, checksum string) (bool, error) {
	args := m.Called(ctx, checksum)
	return args.Bool(0), args.Error(1)
}

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) ClearDownloads() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockFetcher) Fetch(ctx context.Context, r models.DateRange) (extractor.Outcome, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(extractor.Outcome), args.Error(1)
}

func (m *MockFetcher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockOpener is a mock implementation of the SessionOpener interface.
type MockOpener struct {
	mock.Mock
}

func (m *MockOpener) Open(ctx context.Context) (Fetcher, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Fetcher), args.Error(1)
}

// MockProcessor is a mock implementation of the Processor interface.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, runID string, r models.DateRange, path string) (models.RangeResult, error) {
	args := m.Called(ctx, runID, r, path)
	return args.Get(0).(models.RangeResult), args.Error(1)
}

// MockUploader is a mock implementation of runlog.Uploader.
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, key string, body []byte) error {
	args := m.Called(ctx, key, body)
	return args.Error(0)
}

// MockPusher is a mock implementation of the MetricsPusher interface.
type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Push(ctx context.Context, recorder *metrics.Recorder) error {
	args := m.Called(ctx, recorder)
	return args.Error(0)
}

// MockSource is a mock implementation of parser.TabularSource.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Read(filePath string) (models.RawBatch, error) {
	args := m.Called(filePath)
	return args.Get(0).(models.RawBatch), args.Error(1)
}
