package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return dbpool, nil
}

// Tables names the destination table and its companions inside one schema.
type Tables struct {
	Schema   string
	Projects string
}

func (t Tables) projects() string {
	return pgx.Identifier{t.Schema, t.Projects}.Sanitize()
}

func (t Tables) stagingName() string {
	return t.Projects + "_staging"
}

func (t Tables) staging() string {
	return pgx.Identifier{t.Schema, t.stagingName()}.Sanitize()
}

func (t Tables) fileRecords() string {
	return pgx.Identifier{t.Schema, "file_records"}.Sanitize()
}

// wallClock renders t in loc and drops the zone, the way TIMESTAMP columns
// store it.
func wallClock(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
}

// projectColumns is the column order shared by the destination and staging
// tables.
var projectColumns = []string{
	"id", "folio", "nombre_proyecto", "web", "tipo_presentacion", "region", "comuna", "provincia",
	"tipo_proyecto", "razon_ingreso", "titular", "inversion_mmu", "fecha_presentacion",
	"estado_proyecto", "fecha_calificacion", "sector_productivo", "latitud", "longitud",
}

// mutableColumns are overwritten when an existing project is merged again.
var mutableColumns = []string{
	"nombre_proyecto", "web", "tipo_presentacion", "region", "comuna", "provincia",
	"tipo_proyecto", "razon_ingreso", "titular", "inversion_mmu", "fecha_presentacion",
	"estado_proyecto", "fecha_calificacion", "sector_productivo", "latitud", "longitud",
}

const projectColumnTypes = `
		id VARCHAR(32) NOT NULL,
		folio TEXT,
		nombre_proyecto TEXT,
		web TEXT,
		tipo_presentacion TEXT,
		region TEXT,
		comuna TEXT,
		provincia TEXT,
		tipo_proyecto TEXT,
		razon_ingreso TEXT,
		titular TEXT,
		inversion_mmu DOUBLE PRECISION,
		fecha_presentacion TIMESTAMP,
		estado_proyecto TEXT,
		fecha_calificacion TIMESTAMP,
		sector_productivo TEXT,
		latitud DOUBLE PRECISION,
		longitud DOUBLE PRECISION`
