package importer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"checkin/internal/attendee"
)

// ExportHeader returns the column row written by WriteXLSX. It uses wire
// names so the file can be imported again.
func ExportHeader(kind attendee.Kind) []string {
	var header []string
	for _, f := range attendee.Schema(kind) {
		header = append(header, f.Column)
	}
	return append(header, attendee.ColumnCheckedIn, attendee.ColumnCheckedInAt)
}

// WriteXLSX writes people of kind as a single-sheet workbook.
func WriteXLSX(w io.Writer, kind attendee.Kind, people []attendee.Person) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(kind)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := ExportHeader(kind)
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := setRow(f, sheet, 1, toAny(header)); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	schema := attendee.Schema(kind)
	for i, p := range people {
		values := make([]any, 0, len(header))
		for _, field := range schema {
			values = append(values, p.Field(field.Name))
		}
		values = append(values, p.CheckedIn)
		if p.CheckedInAt != nil {
			values = append(values, attendee.FormatTime(*p.CheckedInAt))
		} else {
			values = append(values, "")
		}
		if err := setRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
