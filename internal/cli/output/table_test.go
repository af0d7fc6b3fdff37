package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shapes [][2]string

func (s shapes) Headers() []string { return []string{"Shape", "Count"} }

func (s shapes) Rows() [][]string {
	rows := make([][]string, len(s))
	for i, r := range s {
		rows[i] = []string{r[0], r[1]}
	}
	return rows
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, shapes{{"create+close", "3"}, {"create+query_info+close", "7"}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SHAPE")
	assert.Contains(t, lines[0], "COUNT")
	assert.Contains(t, lines[1], "create+close")
	assert.Contains(t, lines[2], "create+query_info+close")
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{{"Path", `d\a.txt`}, {"Type", "file"}}))

	output := buf.String()
	assert.Contains(t, output, "Path")
	assert.Contains(t, output, `d\a.txt`)
	assert.Contains(t, output, "file")
	assert.NotContains(t, output, "PATH")
}

func TestPrinterPrintsTableRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(shapes{{"create+close", "1"}}))
	assert.Contains(t, buf.String(), "SHAPE")
}
