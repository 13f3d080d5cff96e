package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/geo-ambiental/seia-sync/internal/models"
)

// ErrMalformedFile rejects a whole batch whose file could not be read.
var ErrMalformedFile = errors.New("malformed tabular file")

// TabularSource reads an extracted file into raw rows keyed by column label.
type TabularSource interface {
	Read(filePath string) (models.RawBatch, error)
}

// FileReader picks a reader by file extension.
type FileReader struct{}

func NewFileReader() *FileReader {
	return &FileReader{}
}

func (FileReader) Read(filePath string) (models.RawBatch, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(filePath)
	case ".csv", ".txt":
		return ReadCSV(filePath)
	default:
		return models.RawBatch{}, fmt.Errorf("%w: unsupported extension for %s", ErrMalformedFile, filePath)
	}
}

// buildBatch maps data rows onto the header. Short rows leave the trailing
// columns empty and fully blank rows are skipped.
func buildBatch(header []string, rows [][]string) models.RawBatch {
	columns := make([]string, len(header))
	for i, label := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(label, "\ufeff"))
	}

	batch := models.RawBatch{Columns: columns, Rows: make([]models.RawRecord, 0, len(rows))}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}

		record := make(models.RawRecord, len(columns))
		for i, label := range columns {
			if label == "" {
				continue
			}
			if i < len(row) {
				record[label] = row[i]
			} else {
				record[label] = ""
			}
		}
		batch.Rows = append(batch.Rows, record)
	}

	return batch
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
