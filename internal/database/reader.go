package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrProjectNotFound = errors.New("project not found")

type ProjectReader struct {
	dbpool *pgxpool.Pool
	tables Tables
}

func NewProjectReader(pool *pgxpool.Pool, tables Tables) *ProjectReader {
	return &ProjectReader{dbpool: pool, tables: tables}
}

func (r *ProjectReader) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf(`
	SELECT %s, fecha_creacion, fecha_actualizacion
	FROM %s
	WHERE id = $1;`, strings.Join(projectColumns, ", "), r.tables.projects())

	var p models.Project
	err := r.dbpool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Folio, &p.NombreProyecto, &p.Web, &p.TipoPresentacion, &p.Region, &p.Comuna, &p.Provincia,
		&p.TipoProyecto, &p.RazonIngreso, &p.Titular, &p.InversionMMU, &p.FechaPresentacion,
		&p.EstadoProyecto, &p.FechaCalificacion, &p.SectorProductivo, &p.Latitud, &p.Longitud,
		&p.FechaCreacion, &p.FechaActualizacion,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("error querying project %s: %w", id, err)
	}

	return &p, nil
}
