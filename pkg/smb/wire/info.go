package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// Fixed sizes of the information classes [MS-FSCC] 2.4.
const (
	FileBasicInfoSize        = 40
	FileStandardInfoSize     = 24
	FileNetworkOpenInfoSize  = 56
	FileAttributeTagInfoSize = 8
	FileInternalInfoSize     = 8
	fileAllInfoFixedSize     = 100
)

// FileBasicInfo is FileBasicInformation [MS-FSCC] 2.4.7. Zero times encode
// as 0, which SET_INFO treats as "leave unchanged".
type FileBasicInfo struct {
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileAttributes types.FileAttributes
}

// Encode appends the structure.
func (i *FileBasicInfo) Encode(w *smbenc.Writer) {
	w.WriteUint64(types.TimeToFiletime(i.CreationTime))
	w.WriteUint64(types.TimeToFiletime(i.LastAccessTime))
	w.WriteUint64(types.TimeToFiletime(i.LastWriteTime))
	w.WriteUint64(types.TimeToFiletime(i.ChangeTime))
	w.WriteUint32(uint32(i.FileAttributes))
	w.WriteUint32(0)
}

func readBasicInfo(r *smbenc.Reader) FileBasicInfo {
	i := FileBasicInfo{
		CreationTime:   types.FiletimeToTime(r.ReadUint64()),
		LastAccessTime: types.FiletimeToTime(r.ReadUint64()),
		LastWriteTime:  types.FiletimeToTime(r.ReadUint64()),
		ChangeTime:     types.FiletimeToTime(r.ReadUint64()),
		FileAttributes: types.FileAttributes(r.ReadUint32()),
	}
	r.Skip(4)
	return i
}

// DecodeFileBasicInfo decodes FileBasicInformation.
func DecodeFileBasicInfo(buf []byte) (*FileBasicInfo, error) {
	r := smbenc.NewReader(buf)
	i := readBasicInfo(r)
	if err := r.Err(); err != nil {
		return nil, infoErr(types.FileBasicInformation, err)
	}
	return &i, nil
}

// FileStandardInfo is FileStandardInformation [MS-FSCC] 2.4.41.
type FileStandardInfo struct {
	AllocationSize uint64
	EndOfFile      uint64
	NumberOfLinks  uint32
	DeletePending  bool
	Directory      bool
}

// Encode appends the structure.
func (i *FileStandardInfo) Encode(w *smbenc.Writer) {
	w.WriteUint64(i.AllocationSize)
	w.WriteUint64(i.EndOfFile)
	w.WriteUint32(i.NumberOfLinks)
	w.WriteUint8(boolByte(i.DeletePending))
	w.WriteUint8(boolByte(i.Directory))
	w.WriteUint16(0)
}

func readStandardInfo(r *smbenc.Reader) FileStandardInfo {
	i := FileStandardInfo{
		AllocationSize: r.ReadUint64(),
		EndOfFile:      r.ReadUint64(),
		NumberOfLinks:  r.ReadUint32(),
		DeletePending:  r.ReadUint8() != 0,
		Directory:      r.ReadUint8() != 0,
	}
	r.Skip(2)
	return i
}

// DecodeFileStandardInfo decodes FileStandardInformation.
func DecodeFileStandardInfo(buf []byte) (*FileStandardInfo, error) {
	r := smbenc.NewReader(buf)
	i := readStandardInfo(r)
	if err := r.Err(); err != nil {
		return nil, infoErr(types.FileStandardInformation, err)
	}
	return &i, nil
}

// FileAllInfo is FileAllInformation [MS-FSCC] 2.4.2.
type FileAllInfo struct {
	Basic         FileBasicInfo
	Standard      FileStandardInfo
	IndexNumber   uint64
	EaSize        uint32
	AccessFlags   uint32
	CurrentByte   uint64
	Mode          uint32
	AlignmentReqs uint32
	Name          string
}

// Encode appends the structure.
func (i *FileAllInfo) Encode(w *smbenc.Writer) {
	i.Basic.Encode(w)
	i.Standard.Encode(w)
	w.WriteUint64(i.IndexNumber)
	w.WriteUint32(i.EaSize)
	w.WriteUint32(i.AccessFlags)
	w.WriteUint64(i.CurrentByte)
	w.WriteUint32(i.Mode)
	w.WriteUint32(i.AlignmentReqs)
	w.WriteUint32(uint32(smbenc.UTF16Len(i.Name)))
	w.WriteUTF16(i.Name)
}

// DecodeFileAllInfo decodes FileAllInformation. A name truncated by
// STATUS_BUFFER_OVERFLOW is returned as far as it is present.
func DecodeFileAllInfo(buf []byte) (*FileAllInfo, error) {
	r := smbenc.NewReader(buf)
	i := &FileAllInfo{
		Basic:    readBasicInfo(r),
		Standard: readStandardInfo(r),
	}
	i.IndexNumber = r.ReadUint64()
	i.EaSize = r.ReadUint32()
	i.AccessFlags = r.ReadUint32()
	i.CurrentByte = r.ReadUint64()
	i.Mode = r.ReadUint32()
	i.AlignmentReqs = r.ReadUint32()
	nameLen := int(r.ReadUint32())
	if err := r.Err(); err != nil {
		return nil, infoErr(types.FileAllInformation, err)
	}
	i.Name = r.ReadUTF16(min(nameLen, r.Remaining()))
	return i, nil
}

// FileNetworkOpenInfo is FileNetworkOpenInformation [MS-FSCC] 2.4.29.
type FileNetworkOpenInfo struct {
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes types.FileAttributes
}

// Encode appends the structure.
func (i *FileNetworkOpenInfo) Encode(w *smbenc.Writer) {
	w.WriteUint64(types.TimeToFiletime(i.CreationTime))
	w.WriteUint64(types.TimeToFiletime(i.LastAccessTime))
	w.WriteUint64(types.TimeToFiletime(i.LastWriteTime))
	w.WriteUint64(types.TimeToFiletime(i.ChangeTime))
	w.WriteUint64(i.AllocationSize)
	w.WriteUint64(i.EndOfFile)
	w.WriteUint32(uint32(i.FileAttributes))
	w.WriteUint32(0)
}

// DecodeFileNetworkOpenInfo decodes FileNetworkOpenInformation.
func DecodeFileNetworkOpenInfo(buf []byte) (*FileNetworkOpenInfo, error) {
	r := smbenc.NewReader(buf)
	i := &FileNetworkOpenInfo{
		CreationTime:   types.FiletimeToTime(r.ReadUint64()),
		LastAccessTime: types.FiletimeToTime(r.ReadUint64()),
		LastWriteTime:  types.FiletimeToTime(r.ReadUint64()),
		ChangeTime:     types.FiletimeToTime(r.ReadUint64()),
		AllocationSize: r.ReadUint64(),
		EndOfFile:      r.ReadUint64(),
		FileAttributes: types.FileAttributes(r.ReadUint32()),
	}
	if err := r.Err(); err != nil {
		return nil, infoErr(types.FileNetworkOpenInformation, err)
	}
	return i, nil
}

// FileAttributeTagInfo is FileAttributeTagInformation [MS-FSCC] 2.4.6.
type FileAttributeTagInfo struct {
	FileAttributes types.FileAttributes
	ReparseTag     uint32
}

// Encode appends the structure.
func (i *FileAttributeTagInfo) Encode(w *smbenc.Writer) {
	w.WriteUint32(uint32(i.FileAttributes))
	w.WriteUint32(i.ReparseTag)
}

// DecodeFileAttributeTagInfo decodes FileAttributeTagInformation.
func DecodeFileAttributeTagInfo(buf []byte) (*FileAttributeTagInfo, error) {
	r := smbenc.NewReader(buf)
	i := &FileAttributeTagInfo{
		FileAttributes: types.FileAttributes(r.ReadUint32()),
		ReparseTag:     r.ReadUint32(),
	}
	if err := r.Err(); err != nil {
		return nil, infoErr(types.FileAttributeTagInformation, err)
	}
	return i, nil
}

// DecodeFileInternalInfo decodes FileInternalInformation into its index number.
func DecodeFileInternalInfo(buf []byte) (uint64, error) {
	r := smbenc.NewReader(buf)
	v := r.ReadUint64()
	if err := r.Err(); err != nil {
		return 0, infoErr(types.FileInternalInformation, err)
	}
	return v, nil
}

// StreamInfo is one FileStreamInformation entry [MS-FSCC] 2.4.44.
type StreamInfo struct {
	// Name is the stream name without the leading ':' and the ":$DATA"
	// suffix. The unnamed data stream has an empty name.
	Name           string
	Size           uint64
	AllocationSize uint64
}

// EncodeFileStreamInfo encodes a stream list.
func EncodeFileStreamInfo(w *smbenc.Writer, streams []StreamInfo) {
	for i, s := range streams {
		entry := w.Len()
		full := ":" + s.Name + ":$DATA"
		w.WriteUint32(0)
		w.WriteUint32(uint32(smbenc.UTF16Len(full)))
		w.WriteUint64(s.Size)
		w.WriteUint64(s.AllocationSize)
		w.WriteUTF16(full)
		if i < len(streams)-1 {
			w.Pad(8)
			w.PutUint32At(entry, uint32(w.Len()-entry))
		}
	}
}

// DecodeFileStreamInfo decodes a FileStreamInformation list.
func DecodeFileStreamInfo(buf []byte) ([]StreamInfo, error) {
	var out []StreamInfo
	for off := 0; len(buf) > 0; {
		r := smbenc.NewReader(buf)
		r.Seek(off)
		next := int(r.ReadUint32())
		nameLen := int(r.ReadUint32())
		s := StreamInfo{Size: r.ReadUint64(), AllocationSize: r.ReadUint64()}
		name := r.ReadUTF16(nameLen)
		if err := r.Err(); err != nil {
			return nil, infoErr(types.FileStreamInformation, err)
		}
		name = strings.TrimPrefix(name, ":")
		s.Name = strings.TrimSuffix(name, ":$DATA")
		out = append(out, s)
		if next == 0 {
			break
		}
		off += next
	}
	return out, nil
}

// EncodeFileDispositionInfo encodes FileDispositionInformation.
func EncodeFileDispositionInfo(deletePending bool) []byte {
	return []byte{boolByte(deletePending)}
}

// FileRenameInfo is FileRenameInformation for SMB2 [MS-FSCC] 2.4.37.2.
type FileRenameInfo struct {
	ReplaceIfExists bool
	// FileName is the share-relative target path.
	FileName string
}

// Encode appends the structure.
func (i *FileRenameInfo) Encode(w *smbenc.Writer) {
	w.WriteUint8(boolByte(i.ReplaceIfExists))
	w.WriteZeros(7)
	w.WriteUint64(0) // RootDirectory
	w.WriteUint32(uint32(smbenc.UTF16Len(i.FileName)))
	w.WriteUTF16(i.FileName)
}

// DecodeFileRenameInfo decodes FileRenameInformation.
func DecodeFileRenameInfo(buf []byte) (*FileRenameInfo, error) {
	r := smbenc.NewReader(buf)
	i := &FileRenameInfo{ReplaceIfExists: r.ReadUint8() != 0}
	r.Skip(15)
	nameLen := int(r.ReadUint32())
	i.FileName = r.ReadUTF16(nameLen)
	if err := r.Err(); err != nil {
		return nil, infoErr(types.FileRenameInformation, err)
	}
	return i, nil
}

// EncodeFileEndOfFileInfo encodes FileEndOfFileInformation.
func EncodeFileEndOfFileInfo(size uint64) []byte {
	w := smbenc.NewWriter(8)
	w.WriteUint64(size)
	return w.Bytes()
}

// DecodeFileEndOfFileInfo decodes FileEndOfFileInformation.
func DecodeFileEndOfFileInfo(buf []byte) (uint64, error) {
	r := smbenc.NewReader(buf)
	v := r.ReadUint64()
	if err := r.Err(); err != nil {
		return 0, infoErr(types.FileEndOfFileInformation, err)
	}
	return v, nil
}

// EncodeInfo encodes an info structure into a fresh buffer.
func EncodeInfo(enc interface{ Encode(*smbenc.Writer) }) []byte {
	w := smbenc.NewWriter(64)
	enc.Encode(w)
	return w.Bytes()
}

func infoErr(class types.FileInfoClass, err error) error {
	return fmt.Errorf("%w: info class %d: %v", ErrMalformed, class, err)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
