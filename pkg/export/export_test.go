package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payrollTable() Table {
	return Table{
		Title: "Payroll March 2026",
		Columns: []Column{
			{Key: "worker", Title: "Worker"},
			{Key: "hours", Title: "Hours", Numeric: true},
			{Key: "amount", Title: "Amount", Numeric: true},
		},
		Rows: []map[string]string{
			{"worker": "Ada, L.", "hours": "8.00", "amount": "1600.00"},
			{"worker": "Grace", "hours": "4.50"},
		},
		Footer: map[string]string{"worker": "Total", "hours": "12.50", "amount": "1600.00"},
	}
}

func TestCSVRendererWritesHeaderRowsAndFooter(t *testing.T) {
	out, err := NewCSVRenderer().Render(payrollTable())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Worker,Hours,Amount", lines[0])
	assert.Equal(t, `"Ada, L.",8.00,1600.00`, lines[1])
	assert.Equal(t, "Grace,4.50,", lines[2])
	assert.Equal(t, "Total,12.50,1600.00", lines[3])
}

func TestRenderersRejectInvalidTables(t *testing.T) {
	for _, r := range []Renderer{NewCSVRenderer(), NewPDFRenderer()} {
		_, err := r.Render(Table{})
		assert.Error(t, err)

		_, err = r.Render(Table{Columns: []Column{{Key: "a"}, {Key: "a"}}})
		assert.Error(t, err)
	}
}

func TestPDFRendererProducesDocument(t *testing.T) {
	out, err := NewPDFRenderer().Render(payrollTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "pdf", NewPDFRenderer().Extension())
	assert.Equal(t, "text/csv", NewCSVRenderer().ContentType())
}
