package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/geo-ambiental/seia-sync/internal/models"
)

// ReadCSV reads an exported registry listing. The delimiter is ';' when the
// header carries one, ',' otherwise.
func ReadCSV(filePath string) (models.RawBatch, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("%w: failed to open file %s: %v", ErrMalformedFile, filePath, err)
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	firstLine, err := buffered.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return models.RawBatch{}, fmt.Errorf("%w: failed to read header from %s: %v", ErrMalformedFile, filePath, err)
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	if headerLine, _, _ := strings.Cut(string(firstLine), "\n"); strings.Contains(headerLine, ";") {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return models.RawBatch{}, fmt.Errorf("%w: file %s is empty", ErrMalformedFile, filePath)
		}
		return models.RawBatch{}, fmt.Errorf("%w: failed to read header from %s: %v", ErrMalformedFile, filePath, err)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.RawBatch{}, fmt.Errorf("%w: failed to read record from %s: %v", ErrMalformedFile, filePath, err)
		}
		rows = append(rows, record)
	}

	return buildBatch(header, rows), nil
}
