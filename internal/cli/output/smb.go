package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/prefetch"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// LocalTimeFormat is the format of timestamps in table output.
const LocalTimeFormat = "2006-01-02 15:04:05"

var attributeLetters = []struct {
	bit    types.FileAttributes
	letter byte
}{
	{types.FileAttributeDirectory, 'D'},
	{types.FileAttributeReadonly, 'R'},
	{types.FileAttributeHidden, 'H'},
	{types.FileAttributeSystem, 'S'},
	{types.FileAttributeArchive, 'A'},
	{types.FileAttributeReparsePoint, 'L'},
	{types.FileAttributeSparseFile, 'P'},
	{types.FileAttributeOffline, 'O'},
}

// FormatAttributes renders attrs as a fixed-width letter mask, "-" for a
// cleared bit.
func FormatAttributes(attrs types.FileAttributes) string {
	var b strings.Builder
	for _, a := range attributeLetters {
		if attrs&a.bit != 0 {
			b.WriteByte(a.letter)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// FormatTime renders t in local time, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}

// FormatSize renders n with binary units.
func FormatSize(n uint64) string {
	return bytesize.ByteSize(n).String()
}

// DirListing renders a QUERY_DIRECTORY result.
type DirListing []wire.DirEntry

// Headers implements TableRenderer.
func (l DirListing) Headers() []string {
	return []string{"Attributes", "Size", "Modified", "Name"}
}

// Rows implements TableRenderer.
func (l DirListing) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			FormatAttributes(e.FileAttributes),
			FormatSize(e.EndOfFile),
			FormatTime(e.LastWriteTime),
			e.Name,
		})
	}
	return rows
}

// StreamList renders the named streams of a file.
type StreamList []wire.StreamInfo

// Headers implements TableRenderer.
func (l StreamList) Headers() []string {
	return []string{"Stream", "Size", "Allocated"}
}

// Rows implements TableRenderer.
func (l StreamList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		name := s.Name
		if name == "" {
			name = "::$DATA"
		}
		rows = append(rows, []string{name, FormatSize(s.Size), FormatSize(s.AllocationSize)})
	}
	return rows
}

// PrefetchEntries renders the result of a metadata prefetch batch.
type PrefetchEntries []*prefetch.Entry

// Headers implements TableRenderer.
func (l PrefetchEntries) Headers() []string {
	return []string{"Name", "Attributes", "Max Access", "Fetched", "Secondary"}
}

// Rows implements TableRenderer.
func (l PrefetchEntries) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		secondary := "-"
		switch {
		case e.SecondaryFetched:
			secondary = fmt.Sprintf("%d bytes", len(e.Secondary))
		case e.HasSecondary:
			secondary = "present"
		}
		rows = append(rows, []string{
			e.Name,
			FormatAttributes(e.Attributes),
			fmt.Sprintf("0x%08x", e.MaxAccess),
			fmt.Sprintf("%t", e.MetaFetched),
			secondary,
		})
	}
	return rows
}

// StatPairs returns the key-value rows describing info.
func StatPairs(path string, info *wire.FileAllInfo) [][2]string {
	kind := "file"
	if info.Standard.Directory {
		kind = "directory"
	} else if info.Basic.FileAttributes.IsReparsePoint() {
		kind = "reparse point"
	}
	return [][2]string{
		{"Path", path},
		{"Type", kind},
		{"Size", fmt.Sprintf("%d (%s)", info.Standard.EndOfFile, FormatSize(info.Standard.EndOfFile))},
		{"Allocated", FormatSize(info.Standard.AllocationSize)},
		{"Attributes", FormatAttributes(info.Basic.FileAttributes)},
		{"Links", fmt.Sprintf("%d", info.Standard.NumberOfLinks)},
		{"Index", fmt.Sprintf("%d", info.IndexNumber)},
		{"Access", fmt.Sprintf("0x%08x", info.AccessFlags)},
		{"Created", FormatTime(info.Basic.CreationTime)},
		{"Accessed", FormatTime(info.Basic.LastAccessTime)},
		{"Modified", FormatTime(info.Basic.LastWriteTime)},
		{"Changed", FormatTime(info.Basic.ChangeTime)},
	}
}
