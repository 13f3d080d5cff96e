// Package normalizer maps raw registry rows onto the canonical project schema.
package normalizer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/geo-ambiental/seia-sync/pkg/checksum"
	"github.com/xuri/excelize/v2"
)

const (
	ColumnName   = "Nombre del Proyecto"
	ColumnHolder = "Titular"
	ColumnDate   = "Fecha Presentación"
)

type column struct {
	Source string
	Field  string
	text   func(*models.CanonicalRecord) **string
	date   func(*models.CanonicalRecord) **time.Time
	number func(*models.CanonicalRecord) **float64
}

var columns = []column{
	{Source: ColumnName, Field: "nombre_proyecto", text: func(r *models.CanonicalRecord) **string { return &r.NombreProyecto }},
	{Source: "WEB", Field: "web", text: func(r *models.CanonicalRecord) **string { return &r.Web }},
	{Source: "Tipo de Presentación", Field: "tipo_presentacion", text: func(r *models.CanonicalRecord) **string { return &r.TipoPresentacion }},
	{Source: "Región", Field: "region", text: func(r *models.CanonicalRecord) **string { return &r.Region }},
	{Source: "Comuna", Field: "comuna", text: func(r *models.CanonicalRecord) **string { return &r.Comuna }},
	{Source: "Provincia", Field: "provincia", text: func(r *models.CanonicalRecord) **string { return &r.Provincia }},
	{Source: "Tipo de Proyecto", Field: "tipo_proyecto", text: func(r *models.CanonicalRecord) **string { return &r.TipoProyecto }},
	{Source: "Razón de Ingreso", Field: "razon_ingreso", text: func(r *models.CanonicalRecord) **string { return &r.RazonIngreso }},
	{Source: ColumnHolder, Field: "titular", text: func(r *models.CanonicalRecord) **string { return &r.Titular }},
	{Source: "Inversión (MMU$)", Field: "inversion_mmu", number: func(r *models.CanonicalRecord) **float64 { return &r.InversionMMU }},
	{Source: ColumnDate, Field: "fecha_presentacion", date: func(r *models.CanonicalRecord) **time.Time { return &r.FechaPresentacion }},
	{Source: "Estado del Proyecto", Field: "estado_proyecto", text: func(r *models.CanonicalRecord) **string { return &r.EstadoProyecto }},
	{Source: "Fecha Calificación", Field: "fecha_calificacion", date: func(r *models.CanonicalRecord) **time.Time { return &r.FechaCalificacion }},
	{Source: "Sector Productivo", Field: "sector_productivo", text: func(r *models.CanonicalRecord) **string { return &r.SectorProductivo }},
	{Source: "Latitud Punto Representativo", Field: "latitud", number: func(r *models.CanonicalRecord) **float64 { return &r.Latitud }},
	{Source: "Longitud Punto Representativo", Field: "longitud", number: func(r *models.CanonicalRecord) **float64 { return &r.Longitud }},
}

// ColumnMapping returns source label -> canonical field for every known column.
func ColumnMapping() map[string]string {
	mapping := make(map[string]string, len(columns))
	for _, c := range columns {
		mapping[c.Source] = c.Field
	}
	return mapping
}

type Stats struct {
	Input      int
	Duplicates int
	Superseded int
	Output     int
}

// Normalize coerces every row, drops exact duplicates, keeps the latest
// submission per (name, holder) and assigns ids. Unparsable dates and numbers
// become nil instead of failing the row.
func Normalize(batch models.RawBatch) ([]models.CanonicalRecord, Stats) {
	stats := Stats{Input: len(batch.Rows)}

	present := make([]column, 0, len(columns))
	for _, c := range columns {
		if batch.HasColumn(c.Source) {
			present = append(present, c)
		}
	}

	records := make([]models.CanonicalRecord, 0, len(batch.Rows))
	seen := make(map[string]struct{}, len(batch.Rows))
	for _, row := range batch.Rows {
		record := coerce(row, present)
		key := rowKey(record)
		if _, ok := seen[key]; ok {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		records = append(records, record)
	}

	if batch.HasColumn(ColumnName) && batch.HasColumn(ColumnHolder) && batch.HasColumn(ColumnDate) {
		before := len(records)
		records = keepLatestPerProject(records)
		stats.Superseded = before - len(records)
	}

	for i := range records {
		r := &records[i]
		r.ID = checksum.IdentityHash(r.NombreProyecto, r.FechaPresentacion, r.Titular)
		r.Folio = nil
	}

	stats.Output = len(records)
	return records, stats
}

func coerce(row models.RawRecord, present []column) models.CanonicalRecord {
	var record models.CanonicalRecord
	for _, c := range present {
		value, ok := row[c.Source]
		if !ok || value == "" {
			continue
		}

		switch {
		case c.text != nil:
			v := value
			*c.text(&record) = &v
		case c.date != nil:
			*c.date(&record) = ParseDate(value)
		case c.number != nil:
			*c.number(&record) = ParseNumber(value)
		}
	}
	return record
}

// keepLatestPerProject sorts by submission date descending, absent dates
// last, and keeps the first row of every (name, holder) pair. The sort is
// stable so ties keep input order.
func keepLatestPerProject(records []models.CanonicalRecord) []models.CanonicalRecord {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].FechaPresentacion, records[j].FechaPresentacion
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	kept := records[:0]
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		key := optString(r.NombreProyecto) + "\x1f" + optString(r.Titular)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}
	return kept
}

func rowKey(r models.CanonicalRecord) string {
	parts := []string{
		optString(r.NombreProyecto), optString(r.Web), optString(r.TipoPresentacion),
		optString(r.Region), optString(r.Comuna), optString(r.Provincia),
		optString(r.TipoProyecto), optString(r.RazonIngreso), optString(r.Titular),
		optFloat(r.InversionMMU), optTime(r.FechaPresentacion), optString(r.EstadoProyecto),
		optTime(r.FechaCalificacion), optString(r.SectorProductivo),
		optFloat(r.Latitud), optFloat(r.Longitud),
	}
	return strings.Join(parts, "\x1f")
}

func optString(s *string) string {
	if s == nil {
		return "\x00"
	}
	return "s" + *s
}

func optFloat(f *float64) string {
	if f == nil {
		return "\x00"
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func optTime(t *time.Time) string {
	if t == nil {
		return "\x00"
	}
	return t.Format(time.RFC3339Nano)
}

// Slash and dash dates are day-first, the registry's display format. Ids of
// records carrying text dates hash the parsed value, so changing the order
// here changes those ids.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"2006/01/02",
}

// ParseDate accepts ISO and day-first layouts plus Excel serial numbers.
// Results are UTC; anything else yields nil.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial <= 0 || serial > 2958465 {
			return nil
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil
		}
		t = t.Round(time.Second).UTC()
		return &t
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ParseNumber accepts plain and locale formatted numbers ("1.234,56").
func ParseNumber(value string) *float64 {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer(" ", "", "\u00a0", "").Replace(value)
	if value == "" {
		return nil
	}

	lastComma := strings.LastIndex(value, ",")
	lastDot := strings.LastIndex(value, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.Replace(value, ",", ".", 1)
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(value, ",") > 1 {
			value = strings.ReplaceAll(value, ",", "")
		} else {
			value = strings.Replace(value, ",", ".", 1)
		}
	case strings.Count(value, ".") > 1:
		value = strings.ReplaceAll(value, ".", "")
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
