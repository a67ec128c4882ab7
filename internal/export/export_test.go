package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/adverant/nexus/sirim-worker/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func sampleRecords() []storage.Record {
	created := time.Date(2024, 2, 3, 14, 5, 59, 0, time.UTC)
	return []storage.Record{
		{
			ID: "r1",
			FieldSet: processor.FieldSet{
				SerialNo: processor.StringPtr("TA1234567"),
				Brand:    processor.StringPtr("ACME, Inc"),
				Rating:   processor.StringPtr("240V"),
			},
			Confidence:       0.875,
			CreatedAt:        created,
			UpdatedAt:        created,
			ValidationStatus: storage.ValidationValidated,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRecords(), nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "SIRIM Serial,Batch,Brand,Model,Type,Rating,Pack Size,Confidence,Created,Status\n" +
		"TA1234567,,\"ACME, Inc\",,,240V,,0.875,2024-02-03 14:05,validated\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV_Location(t *testing.T) {
	var buf bytes.Buffer
	loc := time.FixedZone("MYT", 8*3600)
	if err := WriteCSV(&buf, sampleRecords(), loc); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("2024-02-03 22:05")) {
		t.Fatalf("expected local time in output: %s", buf.String())
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleRecords(), nil); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if diff := cmp.Diff(Header, rows[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][0] != "TA1234567" || rows[1][2] != "ACME, Inc" || rows[1][8] != "2024-02-03 14:05" {
		t.Fatalf("data row = %v", rows[1])
	}
}
