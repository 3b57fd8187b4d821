package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVRenderer writes RFC 4180 CSV with a header row.
type CSVRenderer struct{}

// NewCSVRenderer returns a CSV renderer.
func NewCSVRenderer() *CSVRenderer { return &CSVRenderer{} }

func (CSVRenderer) ContentType() string { return "text/csv" }
func (CSVRenderer) Extension() string   { return "csv" }

// Render encodes the table. The footer, if any, becomes the last record.
func (CSVRenderer) Render(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.header()); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(t.record(row)); err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
	}
	if t.Footer != nil {
		if err := w.Write(t.record(t.Footer)); err != nil {
			return nil, fmt.Errorf("csv footer: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
