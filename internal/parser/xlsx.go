package parser

import (
	"fmt"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the first sheet of a workbook. Cells are returned raw, so
// dates stored as dates arrive as Excel serial numbers.
func ReadXLSX(filePath string) (models.RawBatch, error) {
	file, err := excelize.OpenFile(filePath)
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("%w: failed to open workbook %s: %v", ErrMalformedFile, filePath, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return models.RawBatch{}, fmt.Errorf("%w: workbook %s has no sheets", ErrMalformedFile, filePath)
	}

	rows, err := file.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("%w: failed to read sheet %s from %s: %v", ErrMalformedFile, sheets[0], filePath, err)
	}
	if len(rows) == 0 {
		return models.RawBatch{}, fmt.Errorf("%w: sheet %s in %s has no header", ErrMalformedFile, sheets[0], filePath)
	}

	return buildBatch(rows[0], rows[1:]), nil
}
