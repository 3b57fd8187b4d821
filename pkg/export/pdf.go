package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth = 277.0 // A4 landscape minus margins
	pdfRowHeight = 7.0
)

// PDFRenderer lays the table out on A4 landscape pages, repeating the
// header on every page.
type PDFRenderer struct{}

// NewPDFRenderer returns a PDF renderer.
func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

func (PDFRenderer) ContentType() string { return "application/pdf" }
func (PDFRenderer) Extension() string   { return "pdf" }

func (PDFRenderer) Render(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	width := pdfPageWidth / float64(len(t.Columns))

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, title := range t.header() {
			pdf.CellFormat(width, pdfRowHeight+1, title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if t.Title != "" {
			pdf.SetFont("Helvetica", "B", 13)
			pdf.CellFormat(0, 9, t.Title, "", 1, "L", false, 0, "")
		}
		header()
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	writeRow := func(row map[string]string) {
		for i, value := range t.record(row) {
			align := "L"
			if t.Columns[i].Numeric {
				align = "R"
			}
			pdf.CellFormat(width, pdfRowHeight, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	for _, row := range t.Rows {
		writeRow(row)
	}
	if t.Footer != nil {
		pdf.SetFont("Helvetica", "B", 8)
		writeRow(t.Footer)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}
