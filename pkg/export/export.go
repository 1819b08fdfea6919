package export

import (
	"fmt"
	"strings"
)

// Format names a supported export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Table is tabular export content. Every row has one cell per header.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Document is a rendered export ready to be served as an attachment.
type Document struct {
	Body        []byte
	ContentType string
	Extension   string
}

// ParseFormat resolves a query value to a Format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Render encodes the table in the requested format.
func Render(format Format, table Table) (*Document, error) {
	if len(table.Headers) == 0 {
		return nil, fmt.Errorf("%s export requires at least one header", format)
	}
	switch format {
	case FormatCSV:
		body, err := renderCSV(table)
		if err != nil {
			return nil, err
		}
		return &Document{Body: body, ContentType: "text/csv", Extension: "csv"}, nil
	case FormatPDF:
		body, err := renderPDF(table)
		if err != nil {
			return nil, err
		}
		return &Document{Body: body, ContentType: "application/pdf", Extension: "pdf"}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
