package sellthrough

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/engine"
)

// ErrMissingColumn indicates the export header lacks a required column; the
// source is unusable as configured.
var ErrMissingColumn = errors.New("sell-through export missing required column")

// ErrEmptyExport indicates the export body had no header row at all.
var ErrEmptyExport = errors.New("sell-through export is empty")

// Records parses a sell-through export body into per-SKU records keyed by
// normalized SKU. The first row is the header; a SKU column and a days-in-
// stock column are required. Rows with an empty SKU are skipped; when two
// rows normalize to the same SKU the later row wins.
func Records(text string) (map[string]domain.ExternalSkuRecord, error) {
	table := parseTable(text)
	if len(table) == 0 {
		return nil, ErrEmptyExport
	}

	header := table[0]
	colIdx := func(names ...string) int {
		for i, cell := range header {
			cell = strings.TrimSpace(cell)
			for _, name := range names {
				if cell == name {
					return i
				}
			}
		}
		return -1
	}

	idxSKU := colIdx("SKU", "Sku")
	idxDaysIn := colIdx("Days in Stock", "Days In Stock")
	if idxSKU < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, "SKU")
	}
	if idxDaysIn < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, "Days in Stock")
	}

	idxDaysOut := colIdx("Days out of Stock", "Days Out of Stock")
	idxUnitsSold := colIdx("Units Sold", "Units sold")
	idxRate := colIdx("Sell-through Rate", "Sell Through Rate", "Sell-Through Rate")
	idxTitle := colIdx("Title", "Product Title")
	idxGrade := colIdx("Grade")

	records := make(map[string]domain.ExternalSkuRecord, len(table)-1)
	for _, row := range table[1:] {
		get := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		rawSKU := get(idxSKU)
		key, ok := engine.NormalizeSKU(rawSKU)
		if !ok {
			continue
		}

		records[key] = domain.ExternalSkuRecord{
			SKU:             rawSKU,
			Title:           get(idxTitle),
			Grade:           get(idxGrade),
			DaysInStock:     parseIntCell(get(idxDaysIn)),
			DaysOutOfStock:  parseIntCell(get(idxDaysOut)),
			UnitsSold:       parseNullableInt(get(idxUnitsSold)),
			SellThroughRate: parseNullableRate(get(idxRate)),
		}
	}

	return records, nil
}

func parseIntCell(cell string) int {
	if v := parseNullableInt(cell); v != nil {
		return *v
	}
	return 0
}

// parseNullableInt distinguishes "unreported" (nil) from "reported as zero".
func parseNullableInt(cell string) *int {
	cell = strings.ReplaceAll(cell, ",", "")
	if cell == "" {
		return nil
	}
	v, err := strconv.Atoi(cell)
	if err != nil {
		return nil
	}
	return &v
}

// parseNullableRate parses a percentage cell, stripping a trailing '%'.
func parseNullableRate(cell string) *decimal.Decimal {
	cell = strings.TrimSpace(strings.TrimSuffix(cell, "%"))
	cell = strings.ReplaceAll(cell, ",", "")
	if cell == "" {
		return nil
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return nil
	}
	return &d
}

// parseTable is a minimal quoted-field table scanner: comma separators,
// double-quote quoting with doubled-quote escapes, embedded separators and
// line breaks inside quoted fields, and \r\n, \n or bare \r row endings.
// It never fails; malformed input degrades to literal text.
func parseTable(text string) [][]string {
	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
		started  bool
	)

	endField := func() {
		row = append(row, field.String())
		field.Reset()
		started = false
	}
	endRow := func() {
		endField()
		rows = append(rows, row)
		row = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inQuotes {
			if c == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			if !started && field.Len() == 0 {
				inQuotes = true
				started = true
				continue
			}
			field.WriteByte(c)
		case ',':
			endField()
		case '\n':
			endRow()
		case '\r':
			endRow()
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
		default:
			started = true
			field.WriteByte(c)
		}
	}

	// flush a final row with no trailing newline
	if field.Len() > 0 || len(row) > 0 {
		endRow()
	}

	// drop rows that are entirely empty (e.g. trailing blank lines)
	cleaned := rows[:0]
	for _, r := range rows {
		if len(r) == 1 && r[0] == "" {
			continue
		}
		cleaned = append(cleaned, r)
	}
	return cleaned
}
