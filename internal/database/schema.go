package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables the pipeline writes to.
type Schema struct {
	dbpool *pgxpool.Pool
	tables Tables
}

func NewSchema(pool *pgxpool.Pool, tables Tables) *Schema {
	return &Schema{dbpool: pool, tables: tables}
}

func (s *Schema) CreateSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgx.Identifier{s.tables.Schema}.Sanitize())
	if _, err := s.dbpool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error creating schema %s: %w", s.tables.Schema, err)
	}
	return nil
}

func (s *Schema) CreateProjectsTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (%s,
		fecha_creacion TIMESTAMP NOT NULL,
		fecha_actualizacion TIMESTAMP NOT NULL,
		PRIMARY KEY (id)
	);`, s.tables.projects(), projectColumnTypes)

	if _, err := s.dbpool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error creating %s table: %w", s.tables.Projects, err)
	}

	return nil
}

func (s *Schema) CreateFileRecordsTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		file_name VARCHAR(255),
		processed_at TIMESTAMP NOT NULL,
		status VARCHAR(50) NOT NULL CHECK (status IN ('PROCESSING', 'DONE', 'FATAL', 'NO_RESULTS')),
		checksum VARCHAR(64),
		range_start DATE,
		range_end DATE,
		row_count INTEGER,
		errors jsonb
	);`, s.tables.fileRecords())

	if _, err := s.dbpool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error creating file_records table: %w", err)
	}

	return nil
}

// CreateProjectIndexes backs the watermark query.
func (s *Schema) CreateProjectIndexes(ctx context.Context) error {
	index := pgx.Identifier{"idx_" + s.tables.Projects + "_fecha_presentacion"}.Sanitize()
	query := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (fecha_presentacion);`, index, s.tables.projects())

	if _, err := s.dbpool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error creating index: %w", err)
	}

	return nil
}
