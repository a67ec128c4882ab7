/**
 * Record export for the SIRIM capture worker
 *
 * Renders records as CSV or XLSX with a fixed column layout. Absent fields
 * are written as empty cells.
 */

package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/storage"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet that holds exported records
const SheetName = "Records"

// DateLayout formats the Created column
const DateLayout = "2006-01-02 15:04"

// Header is the column layout shared by every export format
var Header = []string{
	"SIRIM Serial", "Batch", "Brand", "Model", "Type",
	"Rating", "Pack Size", "Confidence", "Created", "Status",
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func row(rec storage.Record, loc *time.Location) []string {
	return []string{
		deref(rec.SerialNo),
		deref(rec.BatchNo),
		deref(rec.Brand),
		deref(rec.Model),
		deref(rec.Type),
		deref(rec.Rating),
		deref(rec.PackSize),
		strconv.FormatFloat(rec.Confidence, 'f', -1, 64),
		rec.CreatedAt.In(loc).Format(DateLayout),
		string(rec.ValidationStatus),
	}
}

// WriteCSV writes records as CSV. A nil loc formats dates in UTC.
func WriteCSV(w io.Writer, records []storage.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(row(rec, loc)); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records as a single-sheet workbook with a bold header row.
// A nil loc formats dates in UTC.
func WriteXLSX(w io.Writer, records []storage.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for r, rec := range records {
		values := row(rec, loc)
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			// Confidence stays numeric so it can be sorted and charted
			if c == 7 {
				f.SetCellValue(SheetName, cell, rec.Confidence)
				continue
			}
			f.SetCellValue(SheetName, cell, v)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
