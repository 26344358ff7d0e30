package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"checkin/internal/attendee"
)

// Parsed is the outcome of reading a roster file.
type Parsed struct {
	People  []attendee.Person
	Skipped int // rows without a name
}

// ReadFile parses a .csv or .xlsx roster for kind.
func ReadFile(path string, kind attendee.Kind) (Parsed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Parsed{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, kind)
	case ".csv", ".txt":
		return ReadCSV(f, kind)
	}
	return Parsed{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}

// ReadCSV parses semicolon-delimited rows. The first line is a header.
func ReadCSV(r io.Reader, kind attendee.Kind) (Parsed, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Parsed{}, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return fromRows(kind, rows), nil
}

// ReadXLSX parses the first sheet of a workbook. The first row is a header.
func ReadXLSX(r io.Reader, kind attendee.Kind) (Parsed, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Parsed{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Parsed{}, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Parsed{}, fmt.Errorf("read rows: %w", err)
	}
	return fromRows(kind, rows), nil
}

// fromRows maps cells to schema fields. Header cells naming a field (domain or
// column name) select it; without a name column the schema order is used.
func fromRows(kind attendee.Kind, rows [][]string) Parsed {
	var out Parsed
	if len(rows) == 0 {
		return out
	}
	layout := headerLayout(kind, rows[0])

	for _, rec := range rows[1:] {
		p := attendee.New(kind, "", "")
		for i, cell := range rec {
			name, ok := layout[i]
			if !ok {
				continue
			}
			cell = strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
			if name == "name" {
				p.Name = cell
			} else {
				p.Fields[name] = cell
			}
		}
		if p.Name == "" {
			out.Skipped++
			continue
		}
		out.People = append(out.People, p)
	}
	return out
}

func headerLayout(kind attendee.Kind, header []string) map[int]string {
	byHeader := map[int]string{}
	hasName := false
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, f := range attendee.Schema(kind) {
			if h == strings.ToLower(f.Name) || h == f.Column {
				byHeader[i] = f.Name
				hasName = hasName || f.Name == "name"
			}
		}
	}
	if hasName {
		return byHeader
	}

	positional := map[int]string{}
	for i, f := range attendee.Schema(kind) {
		positional[i] = f.Name
	}
	return positional
}
