package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// StagingHandle points at a filled staging table waiting to be merged.
type StagingHandle struct {
	Table string
	Rows  int
}

type MergeResult struct {
	Inserted int64
	Updated  int64
}

type Store struct {
	dbpool   *pgxpool.Pool
	tables   Tables
	location *time.Location
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewStore(pool *pgxpool.Pool, tables Tables, location *time.Location, logger logrus.FieldLogger) *Store {
	return &Store{
		dbpool:   pool,
		tables:   tables,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// CurrentWatermark returns the latest submission date in the destination
// table. ok is false when the table holds no dated row.
func (s *Store) CurrentWatermark(ctx context.Context) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT MAX(fecha_presentacion) FROM %s;`, s.tables.projects())

	var watermark *time.Time
	if err := s.dbpool.QueryRow(ctx, query).Scan(&watermark); err != nil {
		return time.Time{}, false, fmt.Errorf("error querying watermark: %w", err)
	}
	if watermark == nil {
		return time.Time{}, false, nil
	}

	return *watermark, true, nil
}

// Stage replaces the staging table's content with records. The staging table
// carries explicit column types so a batch where a column is all null still
// lines up with the destination.
func (s *Store) Stage(ctx context.Context, records []models.CanonicalRecord) (StagingHandle, error) {
	handle := StagingHandle{Table: s.tables.stagingName()}

	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return handle, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	createQuery := fmt.Sprintf(`CREATE UNLOGGED TABLE IF NOT EXISTS %s (%s,
		ord INTEGER NOT NULL
	);`, s.tables.staging(), projectColumnTypes)
	if _, err := tx.Exec(ctx, createQuery); err != nil {
		return handle, fmt.Errorf("error creating staging table %s: %w", handle.Table, err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`TRUNCATE %s;`, s.tables.staging())); err != nil {
		return handle, fmt.Errorf("error truncating staging table %s: %w", handle.Table, err)
	}

	columnNames := append(append([]string{}, projectColumns...), "ord")
	copySource := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
		r := records[i]
		return []any{
			r.ID, r.Folio, r.NombreProyecto, r.Web, r.TipoPresentacion, r.Region, r.Comuna, r.Provincia,
			r.TipoProyecto, r.RazonIngreso, r.Titular, r.InversionMMU, r.FechaPresentacion,
			r.EstadoProyecto, r.FechaCalificacion, r.SectorProductivo, r.Latitud, r.Longitud, i,
		}, nil
	})

	s.logger.Infof("Bulk loading %d projects into staging table %s", len(records), handle.Table)
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{s.tables.Schema, handle.Table}, columnNames, copySource)
	if err != nil {
		return handle, fmt.Errorf("unable to copy projects to staging table %s: %w", handle.Table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return handle, fmt.Errorf("error committing transaction: %w", err)
	}

	handle.Rows = int(copied)
	return handle, nil
}

// Merge upserts the staged rows by id in one transaction and drops the
// staging table. On conflict only the mutable fields and fecha_actualizacion
// change; id, folio and fecha_creacion keep their first values.
func (s *Store) Merge(ctx context.Context, handle StagingHandle) (MergeResult, error) {
	var result MergeResult
	staging := pgx.Identifier{s.tables.Schema, handle.Table}.Sanitize()

	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updates := make([]string, 0, len(mutableColumns)+1)
	for _, c := range mutableColumns {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	updates = append(updates, "fecha_actualizacion = EXCLUDED.fecha_actualizacion")

	columns := strings.Join(projectColumns, ", ")
	// DISTINCT ON keeps the first staged row per id so one statement never
	// touches the same target row twice.
	mergeQuery := fmt.Sprintf(`
	INSERT INTO %s (%s, fecha_creacion, fecha_actualizacion)
	SELECT %s, $1::timestamp, $1::timestamp
	FROM (
		SELECT DISTINCT ON (id) *
		FROM %s
		ORDER BY id, ord
	) staged
	ON CONFLICT (id) DO UPDATE SET %s
	RETURNING (xmax = 0) AS inserted;
	`, s.tables.projects(), columns, columns, staging, strings.Join(updates, ", "))

	mergedAt := wallClock(s.now(), s.location)
	s.logger.Infof("Merging staging table %s into %s", handle.Table, s.tables.Projects)
	rows, err := tx.Query(ctx, mergeQuery, mergedAt)
	if err != nil {
		return result, fmt.Errorf("error merging staging table %s: %w", handle.Table, err)
	}
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			rows.Close()
			return result, fmt.Errorf("error scanning merge result: %w", err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return MergeResult{}, fmt.Errorf("error merging staging table %s: %w", handle.Table, err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, staging)); err != nil {
		return MergeResult{}, fmt.Errorf("error dropping staging table %s: %w", handle.Table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeResult{}, fmt.Errorf("error committing transaction: %w", err)
	}

	return result, nil
}
