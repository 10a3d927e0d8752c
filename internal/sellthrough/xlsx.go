package sellthrough

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadFile reads a sell-through export from disk. CSV files are read as-is;
// for XLSX files the first sheet is rendered to CSV text first.
func LoadFile(path string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) == ".xlsx" {
		return xlsxToCSV(path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read export %s: %w", path, err)
	}
	return string(body), nil
}

// xlsxToCSV renders the first sheet of an XLSX workbook as CSV text with a
// header row compatible with Records.
func xlsxToCSV(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx file %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("xlsx file %s has no sheets", path)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("failed to read rows from sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	var out strings.Builder
	w := csv.NewWriter(&out)
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return "", fmt.Errorf("failed to read row from %s: %w", path, err)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to render csv row from %s: %w", path, err)
		}
	}
	if err := rows.Error(); err != nil {
		return "", fmt.Errorf("error iterating rows in %s: %w", path, err)
	}

	w.Flush()
	return out.String(), w.Error()
}
