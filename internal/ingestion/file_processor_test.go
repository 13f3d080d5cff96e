package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/geo-ambiental/seia-sync/pkg/checksum"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func buildProcessorSetup(t *testing.T) (*FileProcessor, *MockSource, *MockStore, *MockLedger, string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Listado.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("spreadsheet"), 0o644))
	sum, err := checksum.GetFileChecksum(path)
	require.NoError(t, err)

	source := new(MockSource)
	store := new(MockStore)
	ledger := new(MockLedger)
	logger, _ := test.NewNullLogger()

	return NewFileProcessor(source, store, ledger, logger), source, store, ledger, path, sum
}

func twoProjects() models.RawBatch {
	return models.RawBatch{
		Columns: []string{"Nombre del Proyecto", "Titular", "Fecha Presentación"},
		Rows: []models.RawRecord{
			{"Nombre del Proyecto": "Proyecto A", "Titular": "ACME", "Fecha Presentación": "2024-03-04"},
			{"Nombre del Proyecto": "Proyecto B", "Titular": "ACME", "Fecha Presentación": "2024-03-05"},
		},
	}
}

func TestFileProcessor_Process(t *testing.T) {
	t.Run("Expect: file merged and ledger closed as done", func(t *testing.T) {
		fp, source, store, ledger, path, sum := buildProcessorSetup(t)
		handle := database.StagingHandle{Table: "seia_limpio_staging", Rows: 2}
		ledger.On("IsFileAlreadyProcessed", mock.Anything, sum).Return(false, nil)
		ledger.On("InsertFileRecord", mock.Anything, "run-1", "Listado.xlsx", sum, march, database.FileStatusProcessing).Return(5, nil)
		source.On("Read", path).Return(twoProjects(), nil)
		store.On("Stage", mock.Anything, mock.MatchedBy(func(records []models.CanonicalRecord) bool {
			return len(records) == 2 && len(records[0].ID) == 12
		})).Return(handle, nil)
		store.On("Merge", mock.Anything, handle).Return(database.MergeResult{Inserted: 1, Updated: 1}, nil)
		ledger.On("UpdateFileStatus", mock.Anything, 5, database.FileStatusDone, 2, nil).Return(nil)

		result, err := fp.Process(context.Background(), "run-1", march, path)

		require.NoError(t, err)
		assert.Equal(t, models.RangeMerged, result.Status)
		assert.Equal(t, 2, result.Rows)
		assert.Equal(t, int64(1), result.Inserted)
		assert.Equal(t, int64(1), result.Updated)
		source.AssertExpectations(t)
		store.AssertExpectations(t)
		ledger.AssertExpectations(t)
	})

	t.Run("Expect: an empty file to succeed without staging", func(t *testing.T) {
		fp, source, store, ledger, path, sum := buildProcessorSetup(t)
		ledger.On("IsFileAlreadyProcessed", mock.Anything, sum).Return(false, nil)
		ledger.On("InsertFileRecord", mock.Anything, "run-1", "Listado.xlsx", sum, march, database.FileStatusProcessing).Return(5, nil)
		source.On("Read", path).Return(models.RawBatch{Columns: []string{"Nombre del Proyecto"}}, nil)
		ledger.On("UpdateFileStatus", mock.Anything, 5, database.FileStatusDone, 0, nil).Return(nil)

		result, err := fp.Process(context.Background(), "run-1", march, path)

		require.NoError(t, err)
		assert.Equal(t, models.RangeEmpty, result.Status)
		store.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything)
		ledger.AssertExpectations(t)
	})

	t.Run("Expect: read failure to fail the range and mark the file fatal", func(t *testing.T) {
		fp, source, store, ledger, path, sum := buildProcessorSetup(t)
		ledger.On("IsFileAlreadyProcessed", mock.Anything, sum).Return(false, nil)
		ledger.On("InsertFileRecord", mock.Anything, "run-1", "Listado.xlsx", sum, march, database.FileStatusProcessing).Return(5, nil)
		source.On("Read", path).Return(models.RawBatch{}, errors.New("malformed tabular file"))
		ledger.On("UpdateFileStatus", mock.Anything, 5, database.FileStatusFatal, 0, mock.Anything).Return(nil)

		result, err := fp.Process(context.Background(), "run-1", march, path)

		require.Error(t, err)
		assert.Equal(t, models.RangeFailed, result.Status)
		require.NotNil(t, result.Err)
		assert.Equal(t, "read", result.Err.Stage)
		store.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything)
		ledger.AssertExpectations(t)
	})

	t.Run("Expect: merge failure to fail the range", func(t *testing.T) {
		fp, source, store, ledger, path, sum := buildProcessorSetup(t)
		handle := database.StagingHandle{Table: "seia_limpio_staging", Rows: 2}
		ledger.On("IsFileAlreadyProcessed", mock.Anything, sum).Return(false, nil)
		ledger.On("InsertFileRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(5, nil)
		source.On("Read", path).Return(twoProjects(), nil)
		store.On("Stage", mock.Anything, mock.Anything).Return(handle, nil)
		store.On("Merge", mock.Anything, handle).Return(database.MergeResult{}, errors.New("deadlock detected"))
		ledger.On("UpdateFileStatus", mock.Anything, 5, database.FileStatusFatal, 0, mock.Anything).Return(nil)

		result, err := fp.Process(context.Background(), "run-1", march, path)

		var rangeErr *models.RangeError
		require.ErrorAs(t, err, &rangeErr)
		assert.Equal(t, "merge", rangeErr.Stage)
		assert.ErrorContains(t, err, "deadlock detected")
		assert.Equal(t, models.RangeFailed, result.Status)
		ledger.AssertExpectations(t)
	})

	t.Run("Expect: ledger failures not to fail the file", func(t *testing.T) {
		fp, source, store, ledger, path, sum := buildProcessorSetup(t)
		handle := database.StagingHandle{Table: "seia_limpio_staging", Rows: 2}
		ledger.On("IsFileAlreadyProcessed", mock.Anything, sum).Return(false, errors.New("relation does not exist"))
		ledger.On("InsertFileRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("relation does not exist"))
		source.On("Read", path).Return(twoProjects(), nil)
		store.On("Stage", mock.Anything, mock.Anything).Return(handle, nil)
		store.On("Merge", mock.Anything, handle).Return(database.MergeResult{Inserted: 2}, nil)

		result, err := fp.Process(context.Background(), "run-1", march, path)

		require.NoError(t, err)
		assert.Equal(t, models.RangeMerged, result.Status)
		ledger.AssertNotCalled(t, "UpdateFileStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expect: an already processed file to be merged again", func(t *testing.T) {
		fp, source, store, ledger, path, sum := buildProcessorSetup(t)
		handle := database.StagingHandle{Table: "seia_limpio_staging", Rows: 2}
		ledger.On("IsFileAlreadyProcessed", mock.Anything, sum).Return(true, nil)
		ledger.On("InsertFileRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(6, nil)
		source.On("Read", path).Return(twoProjects(), nil)
		store.On("Stage", mock.Anything, mock.Anything).Return(handle, nil)
		store.On("Merge", mock.Anything, handle).Return(database.MergeResult{Updated: 2}, nil)
		ledger.On("UpdateFileStatus", mock.Anything, 6, database.FileStatusDone, 2, nil).Return(nil)

		result, err := fp.Process(context.Background(), "run-1", march, path)

		require.NoError(t, err)
		assert.Equal(t, int64(2), result.Updated)
		store.AssertExpectations(t)
	})
}
