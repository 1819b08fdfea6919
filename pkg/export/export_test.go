package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRenderCSV(t *testing.T) {
	doc, err := Render(FormatCSV, Table{
		Headers: []string{"Name", "Email"},
		Rows:    [][]string{{"Doe, John", "john@example.com"}, {"Jane"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Equal(t, "Name,Email\n\"Doe, John\",john@example.com\nJane,\n", string(doc.Body))
}

func TestRenderPDFPaginates(t *testing.T) {
	rows := make([][]string, 0, 80)
	for i := 0; i < 80; i++ {
		rows = append(rows, []string{fmt.Sprintf("student-%d", i), "x@example.com"})
	}
	doc, err := Render(FormatPDF, Table{Title: "CS101 roster", Headers: []string{"Name", "Email"}, Rows: rows})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF")))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := Render(FormatCSV, Table{})
	assert.Error(t, err)
}
