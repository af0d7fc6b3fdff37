package prefetch

import (
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Entry is the cached metadata of one directory entry. Run fills it in
// place.
type Entry struct {
	Name       string
	Attributes types.FileAttributes
	IsSymlink  bool

	// MaxAccess is the maximal access the caller has on the entry.
	MaxAccess uint32
	// HasSecondary reports whether the entry carries the secondary stream.
	HasSecondary bool
	// Secondary holds the leading bytes of the secondary stream.
	Secondary []byte

	MetaFetched      bool
	SecondaryFetched bool
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Attributes.IsDir() }

// EntriesFrom converts a QUERY_DIRECTORY listing, skipping "." and "..".
func EntriesFrom(listing []wire.DirEntry) []*Entry {
	out := make([]*Entry, 0, len(listing))
	for i := range listing {
		de := &listing[i]
		if de.Name == "." || de.Name == ".." {
			continue
		}
		out = append(out, &Entry{
			Name:       de.Name,
			Attributes: de.FileAttributes,
			IsSymlink:  de.IsSymlink(),
		})
	}
	return out
}

// needsMeta and needsSecondary decide eligibility for the next job.
func (e *Entry) needsMeta() bool { return !e.MetaFetched }

func (e *Entry) needsSecondary(want bool) bool {
	return want && e.MetaFetched && e.HasSecondary && !e.SecondaryFetched && !e.IsDir()
}
