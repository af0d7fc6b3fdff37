package wire

import (
	"time"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

const dirEntryFixedSize = 104

// DirEntry is one FileIdBothDirectoryInformation record [MS-FSCC] 2.4.17.
type DirEntry struct {
	FileIndex      uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	EndOfFile      uint64
	AllocationSize uint64
	FileAttributes types.FileAttributes
	// EaSize carries the reparse tag when FileAttributeReparsePoint is set.
	EaSize         uint32
	FileID         uint64
	Name           string
}

// ReparseTag returns the reparse tag of a reparse-point entry, or 0.
func (e *DirEntry) ReparseTag() uint32 {
	if !e.FileAttributes.IsReparsePoint() {
		return 0
	}
	return e.EaSize
}

// IsSymlink reports whether the entry is a symbolic link reparse point.
func (e *DirEntry) IsSymlink() bool {
	return e.ReparseTag() == types.ReparseTagSymlink
}

// EncodeDirEntries encodes entries as a FileIdBothDirectoryInformation list.
// Entries that would push the list past limit are left out; the number
// encoded is returned.
func EncodeDirEntries(w *smbenc.Writer, entries []DirEntry, limit int) int {
	start := w.Len()
	prev := -1
	n := 0
	for _, e := range entries {
		size := dirEntryFixedSize + smbenc.UTF16Len(e.Name)
		if prev >= 0 {
			if pad := align8(w.Len()-start) - (w.Len() - start); pad > 0 {
				size += pad
			}
		}
		if limit > 0 && w.Len()-start+size > limit {
			break
		}
		if prev >= 0 {
			w.Pad(8)
			w.PutUint32At(prev, uint32(w.Len()-prev))
		}
		prev = w.Len()
		w.WriteUint32(0)
		w.WriteUint32(e.FileIndex)
		w.WriteUint64(types.TimeToFiletime(e.CreationTime))
		w.WriteUint64(types.TimeToFiletime(e.LastAccessTime))
		w.WriteUint64(types.TimeToFiletime(e.LastWriteTime))
		w.WriteUint64(types.TimeToFiletime(e.ChangeTime))
		w.WriteUint64(e.EndOfFile)
		w.WriteUint64(e.AllocationSize)
		w.WriteUint32(uint32(e.FileAttributes))
		w.WriteUint32(uint32(smbenc.UTF16Len(e.Name)))
		w.WriteUint32(e.EaSize)
		w.WriteUint8(0)  // ShortNameLength
		w.WriteUint8(0)  // Reserved1
		w.WriteZeros(24) // ShortName
		w.WriteUint16(0) // Reserved2
		w.WriteUint64(e.FileID)
		w.WriteUTF16(e.Name)
		n++
	}
	return n
}

// DecodeDirEntries decodes a FileIdBothDirectoryInformation list.
func DecodeDirEntries(buf []byte) ([]DirEntry, error) {
	var out []DirEntry
	for off := 0; len(buf) > 0; {
		r := smbenc.NewReader(buf)
		r.Seek(off)
		next := int(r.ReadUint32())
		e := DirEntry{FileIndex: r.ReadUint32()}
		e.CreationTime = types.FiletimeToTime(r.ReadUint64())
		e.LastAccessTime = types.FiletimeToTime(r.ReadUint64())
		e.LastWriteTime = types.FiletimeToTime(r.ReadUint64())
		e.ChangeTime = types.FiletimeToTime(r.ReadUint64())
		e.EndOfFile = r.ReadUint64()
		e.AllocationSize = r.ReadUint64()
		e.FileAttributes = types.FileAttributes(r.ReadUint32())
		nameLen := int(r.ReadUint32())
		e.EaSize = r.ReadUint32()
		r.Skip(28)
		e.FileID = r.ReadUint64()
		e.Name = r.ReadUTF16(nameLen)
		if err := r.Err(); err != nil {
			return nil, infoErr(types.FileIDBothDirectoryInformation, err)
		}
		out = append(out, e)
		if next == 0 {
			break
		}
		off += next
	}
	return out, nil
}
