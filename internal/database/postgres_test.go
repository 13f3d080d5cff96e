package database

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testTables = Tables{Schema: "seia", Projects: "seia_limpio"}

// setupPostgres starts a throwaway Postgres and creates the schema. Tests
// are skipped when -short is set or Docker is not reachable.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	testcontainers.Logger = log.New(io.Discard, "", 0)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "seia",
				"POSTGRES_PASSWORD": "seia",
				"POSTGRES_DB":       "seia",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := ConnectDB(ctx, fmt.Sprintf("postgres://seia:seia@%s:%s/seia?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema := NewSchema(pool, testTables)
	require.NoError(t, schema.CreateSchema(ctx))
	require.NoError(t, schema.CreateProjectsTable(ctx))
	require.NoError(t, schema.CreateFileRecordsTable(ctx))
	require.NoError(t, schema.CreateProjectIndexes(ctx))

	return pool
}

func ptr[T any](v T) *T {
	return &v
}

func newRecord(id, name string, submitted time.Time) models.CanonicalRecord {
	return models.CanonicalRecord{
		ID:                id,
		NombreProyecto:    ptr(name),
		Titular:           ptr("ACME"),
		FechaPresentacion: ptr(submitted),
		EstadoProyecto:    ptr("En Admisión"),
		InversionMMU:      ptr(1.5),
	}
}

func stageAndMerge(t *testing.T, store *Store, records []models.CanonicalRecord) MergeResult {
	t.Helper()
	ctx := context.Background()
	handle, err := store.Stage(ctx, records)
	require.NoError(t, err)
	require.Equal(t, len(records), handle.Rows)
	result, err := store.Merge(ctx, handle)
	require.NoError(t, err)
	return result
}

func TestStore(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	store := NewStore(pool, testTables, santiago, logger)
	reader := NewProjectReader(pool, testTables)
	firstMerge := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return firstMerge }

	t.Run("Expect: no watermark on an empty table", func(t *testing.T) {
		_, ok, err := store.CurrentWatermark(ctx)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Expect: new rows inserted with merge time in the configured zone", func(t *testing.T) {
		result := stageAndMerge(t, store, []models.CanonicalRecord{
			newRecord("aaaaaaaaaaaa", "Proyecto A", feb),
			newRecord("bbbbbbbbbbbb", "Proyecto B", mar),
		})

		assert.Equal(t, MergeResult{Inserted: 2}, result)

		project, err := reader.GetProject(ctx, "aaaaaaaaaaaa")
		require.NoError(t, err)
		assert.Equal(t, "Proyecto A", *project.NombreProyecto)
		assert.Nil(t, project.Folio)
		assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), project.FechaCreacion)
		assert.Equal(t, project.FechaCreacion, project.FechaActualizacion)
	})

	t.Run("Expect: watermark to be the latest submission", func(t *testing.T) {
		watermark, ok, err := store.CurrentWatermark(ctx)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, mar, watermark)
	})

	t.Run("Expect: re-merge to update in place keeping creation time", func(t *testing.T) {
		store.now = func() time.Time { return firstMerge.Add(24 * time.Hour) }
		changed := newRecord("aaaaaaaaaaaa", "Proyecto A", feb)
		changed.EstadoProyecto = ptr("Aprobado")

		result := stageAndMerge(t, store, []models.CanonicalRecord{changed, newRecord("cccccccccccc", "Proyecto C", mar)})

		assert.Equal(t, MergeResult{Inserted: 1, Updated: 1}, result)
		project, err := reader.GetProject(ctx, "aaaaaaaaaaaa")
		require.NoError(t, err)
		assert.Equal(t, "Aprobado", *project.EstadoProyecto)
		assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), project.FechaCreacion)
		assert.Equal(t, time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC), project.FechaActualizacion)
	})

	t.Run("Expect: unchanged batch to be idempotent", func(t *testing.T) {
		records := []models.CanonicalRecord{newRecord("bbbbbbbbbbbb", "Proyecto B", mar)}

		first := stageAndMerge(t, store, records)
		second := stageAndMerge(t, store, records)

		assert.Equal(t, MergeResult{Updated: 1}, first)
		assert.Equal(t, first, second)

		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM seia.seia_limpio`).Scan(&count))
		assert.Equal(t, 3, count)
	})

	t.Run("Expect: duplicate ids in one batch merged once", func(t *testing.T) {
		first := newRecord("dddddddddddd", "Proyecto D", mar)
		second := newRecord("dddddddddddd", "Proyecto D", mar)
		second.EstadoProyecto = ptr("Rechazado")

		result := stageAndMerge(t, store, []models.CanonicalRecord{first, second})

		assert.Equal(t, MergeResult{Inserted: 1}, result)
		project, err := reader.GetProject(ctx, "dddddddddddd")
		require.NoError(t, err)
		assert.Equal(t, "En Admisión", *project.EstadoProyecto)
	})

	t.Run("Expect: all-null optional columns to stage and merge", func(t *testing.T) {
		result := stageAndMerge(t, store, []models.CanonicalRecord{{ID: "eeeeeeeeeeee"}})

		assert.Equal(t, MergeResult{Inserted: 1}, result)
	})

	t.Run("Expect: staging table dropped after merge", func(t *testing.T) {
		var exists bool
		err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'seia' AND tablename = 'seia_limpio_staging')`).Scan(&exists)

		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Expect: unknown project to be reported as not found", func(t *testing.T) {
		_, err := reader.GetProject(ctx, "ffffffffffff")

		assert.ErrorIs(t, err, ErrProjectNotFound)
	})
}

func TestFileLedger(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	ledger := NewFileLedger(pool, testTables)
	r := models.DateRange{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	t.Run("Expect: a processed file to be found by checksum", func(t *testing.T) {
		id, err := ledger.InsertFileRecord(ctx, "run-1", "Listado.xlsx", "abc123", r, FileStatusProcessing)
		require.NoError(t, err)

		processed, err := ledger.IsFileAlreadyProcessed(ctx, "abc123")
		require.NoError(t, err)
		assert.False(t, processed)

		require.NoError(t, ledger.UpdateFileStatus(ctx, id, FileStatusDone, 12, nil))

		processed, err = ledger.IsFileAlreadyProcessed(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("Expect: no-result ranges recorded without a file", func(t *testing.T) {
		id, err := ledger.InsertFileRecord(ctx, "run-1", "", "", r, FileStatusNoResults)
		require.NoError(t, err)

		var fileName *string
		require.NoError(t, pool.QueryRow(ctx, `SELECT file_name FROM seia.file_records WHERE id = $1`, id).Scan(&fileName))
		assert.Nil(t, fileName)
	})

	t.Run("Expect: errors stored as json", func(t *testing.T) {
		id, err := ledger.InsertFileRecord(ctx, "run-1", "Listado.xlsx", "def456", r, FileStatusProcessing)
		require.NoError(t, err)

		require.NoError(t, ledger.UpdateFileStatus(ctx, id, FileStatusFatal, 0, []string{"merge failed"}))

		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT jsonb_array_length(errors) FROM seia.file_records WHERE id = $1`, id).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("Expect: unknown status rejected", func(t *testing.T) {
		_, err := ledger.InsertFileRecord(ctx, "run-1", "x.xlsx", "", r, "BOGUS")

		assert.Error(t, err)
	})
}
