package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that can be shown as a table.
type TableRenderer interface {
	// Headers returns the column headers.
	Headers() []string
	// Rows returns the data rows, one cell per header.
	Rows() [][]string
}

// tableStyle is the borderless, left aligned layout shared by every table.
// sep separates columns; headers are upper-cased when a header row exists.
func tableStyle(w io.Writer, sep string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetRowSeparator("")
	t.SetColumnSeparator(sep)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

// PrintTable writes data as a table with an upper-cased header row.
func PrintTable(w io.Writer, data TableRenderer) error {
	t := tableStyle(w, "")
	t.SetAutoFormatHeaders(true)
	t.SetHeader(data.Headers())
	t.AppendBulk(data.Rows())
	t.Render()
	return nil
}

// SimpleTable writes label/value pairs, one per line.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	t := tableStyle(w, ":")
	t.SetAutoFormatHeaders(false)
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	t.AppendBulk(rows)
	t.Render()
	return nil
}
