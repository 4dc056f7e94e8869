package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/referly/internal/user/domain"
	"github.com/xuri/excelize/v2"
)

var requiredImportHeaders = []string{"username", "email", "address"}

// ImportRow is one homeowner parsed from an upload. Row is 1-based and counts the header.
type ImportRow struct {
	Row      int
	Username string
	Email    string
	Address  string
	Phone    string
}

// ParseImport reads homeowner rows from a CSV or XLSX upload.
// Header names are matched case-insensitively; phone is optional.
func ParseImport(format domain.ImportFormat, r io.Reader) ([]ImportRow, error) {
	var records [][]string
	var err error
	switch format {
	case domain.ImportFormatCSV:
		records, err = readCSV(r)
	case domain.ImportFormatXLSX:
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidImport, format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidImport)
	}

	index := map[string]int{}
	for i, header := range records[0] {
		index[strings.ToLower(strings.TrimSpace(header))] = i
	}
	var missing []string
	for _, header := range requiredImportHeaders {
		if _, ok := index[header]; !ok {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required headers: %s", domain.ErrInvalidImport, strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, ImportRow{
			Row:      i + 2,
			Username: field(record, "username"),
			Email:    field(record, "email"),
			Address:  field(record, "address"),
			Phone:    field(record, "phone"),
		})
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImport, err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImport, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Join(domain.ErrInvalidImport, errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImport, err)
	}
	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
