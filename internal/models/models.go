package models

import (
	"fmt"
	"time"
)

const sourceDateLayout = "02/01/2006"

// DateRange is an inclusive window of calendar dates. Both bounds are
// midnight UTC values carrying only the civil date.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}

// FormatSource returns the bounds the way the registry search form expects them.
func (r DateRange) FormatSource() (string, string) {
	return r.From.Format(sourceDateLayout), r.To.Format(sourceDateLayout)
}

// RawRecord is one spreadsheet row keyed by the source column label.
type RawRecord map[string]string

type RawBatch struct {
	Columns []string
	Rows    []RawRecord
}

func (b RawBatch) HasColumn(label string) bool {
	for _, c := range b.Columns {
		if c == label {
			return true
		}
	}
	return false
}

type CanonicalRecord struct {
	ID                string     `json:"id"`
	Folio             *string    `json:"folio"`
	NombreProyecto    *string    `json:"nombre_proyecto,omitempty"`
	Web               *string    `json:"web,omitempty"`
	TipoPresentacion  *string    `json:"tipo_presentacion,omitempty"`
	Region            *string    `json:"region,omitempty"`
	Comuna            *string    `json:"comuna,omitempty"`
	Provincia         *string    `json:"provincia,omitempty"`
	TipoProyecto      *string    `json:"tipo_proyecto,omitempty"`
	RazonIngreso      *string    `json:"razon_ingreso,omitempty"`
	Titular           *string    `json:"titular,omitempty"`
	InversionMMU      *float64   `json:"inversion_mmu,omitempty"`
	FechaPresentacion *time.Time `json:"fecha_presentacion,omitempty"`
	EstadoProyecto    *string    `json:"estado_proyecto,omitempty"`
	FechaCalificacion *time.Time `json:"fecha_calificacion,omitempty"`
	SectorProductivo  *string    `json:"sector_productivo,omitempty"`
	Latitud           *float64   `json:"latitud,omitempty"`
	Longitud          *float64   `json:"longitud,omitempty"`
}

// Project is a destination table row.
type Project struct {
	CanonicalRecord
	FechaCreacion      time.Time `json:"fecha_creacion"`
	FechaActualizacion time.Time `json:"fecha_actualizacion"`
}

type RangeStatus string

const (
	RangeMerged    RangeStatus = "MERGED"
	RangeNoResults RangeStatus = "NO_RESULTS"
	RangeEmpty     RangeStatus = "EMPTY"
	RangeFailed    RangeStatus = "FAILED"
)

type RangeResult struct {
	Range    DateRange
	Status   RangeStatus
	File     string
	Rows     int
	Inserted int64
	Updated  int64
	Err      *RangeError
}

type RunReport struct {
	RunID     string
	StartedAt time.Time
	Watermark time.Time
	Today     time.Time
	Ranges    []RangeResult
	LogKey    string
}

func (r *RunReport) Failed() int {
	n := 0
	for _, res := range r.Ranges {
		if res.Status == RangeFailed {
			n++
		}
	}
	return n
}

// RangeError records which stage of a range's sub-flow failed.
type RangeError struct {
	Range   DateRange
	Stage   string
	Message string
	Err     error
}

func (e *RangeError) Error() string {
	scope := "Range " + e.Range.String()
	if e.Range.From.IsZero() {
		scope = "File"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s - %v", scope, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", scope, e.Stage, e.Message)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}
