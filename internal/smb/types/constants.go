package types

// Access Mask constants [MS-SMB2] 2.2.13.1
const (
	FileReadData         uint32 = 0x00000001
	FileWriteData        uint32 = 0x00000002
	FileAppendData       uint32 = 0x00000004
	FileReadEA           uint32 = 0x00000008
	FileWriteEA          uint32 = 0x00000010
	FileExecute          uint32 = 0x00000020
	FileDeleteChild      uint32 = 0x00000040
	FileReadAttributes   uint32 = 0x00000080
	FileWriteAttributes  uint32 = 0x00000100
	Delete               uint32 = 0x00010000
	ReadControl          uint32 = 0x00020000
	WriteDac             uint32 = 0x00040000
	WriteOwner           uint32 = 0x00080000
	Synchronize          uint32 = 0x00100000
	AccessSystemSecurity uint32 = 0x01000000
	MaximumAllowed       uint32 = 0x02000000
	GenericAll           uint32 = 0x10000000
	GenericExecute       uint32 = 0x20000000
	GenericWrite         uint32 = 0x40000000
	GenericRead          uint32 = 0x80000000

	// FileAllAccess is the full specific-rights mask for files.
	FileAllAccess uint32 = 0x001F01FF
)

// Share Access constants [MS-SMB2] 2.2.13
const (
	FileShareRead   uint32 = 0x00000001
	FileShareWrite  uint32 = 0x00000002
	FileShareDelete uint32 = 0x00000004

	FileShareAll = FileShareRead | FileShareWrite | FileShareDelete
)

// CreateDisposition selects the action taken when the target exists or not.
type CreateDisposition uint32

// Create Disposition [MS-SMB2] 2.2.13
const (
	FileSupersede   CreateDisposition = 0x00000000
	FileOpen        CreateDisposition = 0x00000001
	FileCreate      CreateDisposition = 0x00000002
	FileOpenIf      CreateDisposition = 0x00000003
	FileOverwrite   CreateDisposition = 0x00000004
	FileOverwriteIf CreateDisposition = 0x00000005
)

// Creates reports whether the disposition may create a new object.
func (d CreateDisposition) Creates() bool {
	switch d {
	case FileSupersede, FileCreate, FileOpenIf, FileOverwriteIf:
		return true
	}
	return false
}

// CreateAction is the action the server reports having taken.
type CreateAction uint32

// Create Action [MS-SMB2] 2.2.14
const (
	FileSuperseded  CreateAction = 0x00000000
	FileOpened      CreateAction = 0x00000001
	FileCreated     CreateAction = 0x00000002
	FileOverwritten CreateAction = 0x00000003
)

// CreateOptions is the CREATE options bitmask.
type CreateOptions uint32

// Create Options [MS-SMB2] 2.2.13
const (
	FileDirectoryFile           CreateOptions = 0x00000001
	FileWriteThrough            CreateOptions = 0x00000002
	FileSequentialOnly          CreateOptions = 0x00000004
	FileNoIntermediateBuffering CreateOptions = 0x00000008
	FileSynchronousIoAlert      CreateOptions = 0x00000010
	FileSynchronousIoNonalert   CreateOptions = 0x00000020
	FileNonDirectoryFile        CreateOptions = 0x00000040
	FileCompleteIfOplocked      CreateOptions = 0x00000100
	FileNoEaKnowledge           CreateOptions = 0x00000200
	FileRandomAccess            CreateOptions = 0x00000800
	FileDeleteOnClose           CreateOptions = 0x00001000
	FileOpenByFileID            CreateOptions = 0x00002000
	FileOpenForBackupIntent     CreateOptions = 0x00004000
	FileNoCompression           CreateOptions = 0x00008000
	FileOpenReparsePoint        CreateOptions = 0x00200000
	FileOpenNoRecall            CreateOptions = 0x00400000
)

// FileAttributes is the [MS-FSCC] 2.6 attribute bitmask.
type FileAttributes uint32

// File Attributes [MS-FSCC] 2.6
const (
	FileAttributeReadonly           FileAttributes = 0x00000001
	FileAttributeHidden             FileAttributes = 0x00000002
	FileAttributeSystem             FileAttributes = 0x00000004
	FileAttributeDirectory          FileAttributes = 0x00000010
	FileAttributeArchive            FileAttributes = 0x00000020
	FileAttributeNormal             FileAttributes = 0x00000080
	FileAttributeTemporary          FileAttributes = 0x00000100
	FileAttributeSparseFile         FileAttributes = 0x00000200
	FileAttributeReparsePoint       FileAttributes = 0x00000400
	FileAttributeCompressed         FileAttributes = 0x00000800
	FileAttributeOffline            FileAttributes = 0x00001000
	FileAttributeNotContentIndexed  FileAttributes = 0x00002000
	FileAttributeEncrypted          FileAttributes = 0x00004000
	FileAttributeRecallOnOpen       FileAttributes = 0x00040000
	FileAttributeRecallOnDataAccess FileAttributes = 0x00400000
)

// IsDir reports whether the directory bit is set.
func (a FileAttributes) IsDir() bool { return a&FileAttributeDirectory != 0 }

// IsReparsePoint reports whether the reparse-point bit is set.
func (a FileAttributes) IsReparsePoint() bool { return a&FileAttributeReparsePoint != 0 }

// IsDataless reports whether the item is offline or recalled on access,
// meaning an ordinary open would trigger a recall on the server.
func (a FileAttributes) IsDataless() bool {
	return a&(FileAttributeOffline|FileAttributeRecallOnOpen|FileAttributeRecallOnDataAccess) != 0
}

// InfoType selects the QUERY_INFO/SET_INFO namespace [MS-SMB2] 2.2.37.
type InfoType uint8

const (
	InfoTypeFile       InfoType = 0x01
	InfoTypeFilesystem InfoType = 0x02
	InfoTypeSecurity   InfoType = 0x03
	InfoTypeQuota      InfoType = 0x04
)

// FileInfoClass identifies a file information class [MS-FSCC] 2.4.
type FileInfoClass uint8

const (
	FileDirectoryInformation       FileInfoClass = 1
	FileFullDirectoryInformation   FileInfoClass = 2
	FileBothDirectoryInformation   FileInfoClass = 3
	FileBasicInformation           FileInfoClass = 4
	FileStandardInformation        FileInfoClass = 5
	FileInternalInformation        FileInfoClass = 6
	FileEaInformation              FileInfoClass = 7
	FileAccessInformation          FileInfoClass = 8
	FileNameInformation            FileInfoClass = 9
	FileRenameInformation          FileInfoClass = 10
	FileNamesInformation           FileInfoClass = 12
	FileDispositionInformation     FileInfoClass = 13
	FilePositionInformation        FileInfoClass = 14
	FileModeInformation            FileInfoClass = 16
	FileAlignmentInformation       FileInfoClass = 17
	FileAllInformation             FileInfoClass = 18
	FileAllocationInformation      FileInfoClass = 19
	FileEndOfFileInformation       FileInfoClass = 20
	FileStreamInformation          FileInfoClass = 22
	FileNetworkOpenInformation     FileInfoClass = 34
	FileAttributeTagInformation    FileInfoClass = 35
	FileIDBothDirectoryInformation FileInfoClass = 37
	FileIDFullDirectoryInformation FileInfoClass = 38
)

// Filesystem information classes [MS-FSCC] 2.5
const (
	FileFsVolumeInformation     FileInfoClass = 1
	FileFsSizeInformation       FileInfoClass = 3
	FileFsAttributeInformation  FileInfoClass = 5
	FileFsFullSizeInformation   FileInfoClass = 7
	FileFsSectorSizeInformation FileInfoClass = 11
)

// FSCTL codes used by the compound engine [MS-FSCC] 2.3
const (
	FsctlGetReparsePoint     uint32 = 0x000900A8
	FsctlSetReparsePoint     uint32 = 0x000900A4
	FsctlSrvRequestResumeKey uint32 = 0x00140078
	FsctlSrvCopyChunk        uint32 = 0x001440F2
)

// IoctlIsFsctl is the SMB2 IOCTL flag selecting an FSCTL [MS-SMB2] 2.2.31.
const IoctlIsFsctl uint32 = 0x00000001

// Reparse tags [MS-FSCC] 2.1.2.1
const (
	ReparseTagSymlink    uint32 = 0xA000000C
	ReparseTagMountPoint uint32 = 0xA0000003
)

// Oplock levels [MS-SMB2] 2.2.13
const (
	OplockLevelNone  uint8 = 0x00
	OplockLevelII    uint8 = 0x01
	OplockLevelBatch uint8 = 0x09
	OplockLevelLease uint8 = 0xFF
)

// Lease state bits [MS-SMB2] 2.2.13.2.8
const (
	LeaseStateNone   uint32 = 0x00
	LeaseStateRead   uint32 = 0x01
	LeaseStateHandle uint32 = 0x02
	LeaseStateWrite  uint32 = 0x04
)

// Lease request flags [MS-SMB2] 2.2.13.2.10
const (
	LeaseFlagBreakInProgress uint32 = 0x00000002
	LeaseFlagParentKeySet    uint32 = 0x00000004
)

// Durable handle v2 flags [MS-SMB2] 2.2.13.2.11
const (
	DurableHandleFlagPersistent uint32 = 0x00000002
)

// QueryDirectory flags [MS-SMB2] 2.2.33
const (
	QueryDirRestartScans      uint8 = 0x01
	QueryDirReturnSingleEntry uint8 = 0x02
	QueryDirIndexSpecified    uint8 = 0x04
	QueryDirReopen            uint8 = 0x10
)

// Close flags [MS-SMB2] 2.2.15
const (
	ClosePostQueryAttrib uint16 = 0x0001
)

// Server capabilities relevant to handle requests [MS-SMB2] 2.2.4
const (
	CapLeasing           uint32 = 0x00000002
	CapPersistentHandles uint32 = 0x00000010
	CapDirectoryLeasing  uint32 = 0x00000020
)
