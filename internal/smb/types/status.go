package types

import "fmt"

// Status represents an NT_STATUS code returned in SMB2 responses.
//
// [MS-ERREF] Section 2.3
type Status uint32

const (
	// Success codes (severity = 00)

	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0x00000000

	// StatusPending indicates the server will answer asynchronously.
	// Interim responses carrying this status are consumed by the transport.
	StatusPending Status = 0x00000103

	// StatusNotifyEnumDir indicates a change notification overflowed.
	StatusNotifyEnumDir Status = 0x0000010C

	// Warning codes (severity = 10)

	// StatusBufferOverflow indicates partial data was returned. The reply
	// body is still valid and must be parsed.
	StatusBufferOverflow Status = 0x80000005

	// StatusNoMoreFiles indicates directory enumeration is complete.
	StatusNoMoreFiles Status = 0x80000006

	// StatusStoppedOnSymlink indicates the path traversed a symbolic link.
	// The error response carries a symbolic link error context.
	StatusStoppedOnSymlink Status = 0x8000002D

	// Error codes (severity = 11)

	StatusNotImplemented         Status = 0xC0000002
	StatusInvalidInfoClass       Status = 0xC0000003
	StatusInfoLengthMismatch     Status = 0xC0000004
	StatusInvalidHandle          Status = 0xC0000008
	StatusInvalidParameter       Status = 0xC000000D
	StatusNoSuchFile             Status = 0xC000000F
	StatusInvalidDeviceRequest   Status = 0xC0000010
	StatusEndOfFile              Status = 0xC0000011
	StatusMoreProcessingRequired Status = 0xC0000016
	StatusAccessDenied           Status = 0xC0000022
	StatusBufferTooSmall         Status = 0xC0000023
	StatusObjectNameInvalid      Status = 0xC0000033
	StatusObjectNameNotFound     Status = 0xC0000034
	StatusObjectNameCollision    Status = 0xC0000035
	StatusObjectPathInvalid      Status = 0xC0000039
	StatusObjectPathNotFound     Status = 0xC000003A
	StatusObjectPathSyntaxBad    Status = 0xC000003B
	StatusSharingViolation       Status = 0xC0000043
	StatusEAListInconsistent     Status = 0xC0000050
	StatusLockNotGranted         Status = 0xC0000054
	StatusDeletePending          Status = 0xC0000056
	StatusPrivilegeNotHeld       Status = 0xC0000061
	StatusLogonFailure           Status = 0xC000006D
	StatusRangeNotLocked         Status = 0xC000007E
	StatusDiskFull               Status = 0xC000007F
	StatusInsufficientResources  Status = 0xC000009A
	StatusIOTimeout              Status = 0xC00000B5
	StatusFileIsADirectory       Status = 0xC00000BA
	StatusNotSupported           Status = 0xC00000BB
	StatusNetworkNameDeleted     Status = 0xC00000C9
	StatusBadNetworkName         Status = 0xC00000CC
	StatusRequestNotAccepted     Status = 0xC00000D0
	StatusInternalError          Status = 0xC00000E5
	StatusUnexpectedIOError      Status = 0xC00000E9
	StatusDirectoryNotEmpty      Status = 0xC0000101
	StatusNotADirectory          Status = 0xC0000103
	StatusCancelled              Status = 0xC0000120
	StatusFileDeleted            Status = 0xC0000123
	StatusFileClosed             Status = 0xC0000128
	StatusUserSessionDeleted     Status = 0xC0000203
	StatusNotFound               Status = 0xC0000225
	StatusPathNotCovered         Status = 0xC0000257
	StatusNotAReparsePoint       Status = 0xC0000275
	StatusNetworkSessionExpired  Status = 0xC000035C
)

// String returns a human-readable name for the status code.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "STATUS_SUCCESS"
	case StatusPending:
		return "STATUS_PENDING"
	case StatusNotifyEnumDir:
		return "STATUS_NOTIFY_ENUM_DIR"
	case StatusBufferOverflow:
		return "STATUS_BUFFER_OVERFLOW"
	case StatusNoMoreFiles:
		return "STATUS_NO_MORE_FILES"
	case StatusStoppedOnSymlink:
		return "STATUS_STOPPED_ON_SYMLINK"
	case StatusNotImplemented:
		return "STATUS_NOT_IMPLEMENTED"
	case StatusInvalidInfoClass:
		return "STATUS_INVALID_INFO_CLASS"
	case StatusInfoLengthMismatch:
		return "STATUS_INFO_LENGTH_MISMATCH"
	case StatusInvalidHandle:
		return "STATUS_INVALID_HANDLE"
	case StatusInvalidParameter:
		return "STATUS_INVALID_PARAMETER"
	case StatusNoSuchFile:
		return "STATUS_NO_SUCH_FILE"
	case StatusInvalidDeviceRequest:
		return "STATUS_INVALID_DEVICE_REQUEST"
	case StatusEndOfFile:
		return "STATUS_END_OF_FILE"
	case StatusMoreProcessingRequired:
		return "STATUS_MORE_PROCESSING_REQUIRED"
	case StatusAccessDenied:
		return "STATUS_ACCESS_DENIED"
	case StatusBufferTooSmall:
		return "STATUS_BUFFER_TOO_SMALL"
	case StatusObjectNameInvalid:
		return "STATUS_OBJECT_NAME_INVALID"
	case StatusObjectNameNotFound:
		return "STATUS_OBJECT_NAME_NOT_FOUND"
	case StatusObjectNameCollision:
		return "STATUS_OBJECT_NAME_COLLISION"
	case StatusObjectPathInvalid:
		return "STATUS_OBJECT_PATH_INVALID"
	case StatusObjectPathNotFound:
		return "STATUS_OBJECT_PATH_NOT_FOUND"
	case StatusObjectPathSyntaxBad:
		return "STATUS_OBJECT_PATH_SYNTAX_BAD"
	case StatusSharingViolation:
		return "STATUS_SHARING_VIOLATION"
	case StatusEAListInconsistent:
		return "STATUS_EA_LIST_INCONSISTENT"
	case StatusLockNotGranted:
		return "STATUS_LOCK_NOT_GRANTED"
	case StatusDeletePending:
		return "STATUS_DELETE_PENDING"
	case StatusPrivilegeNotHeld:
		return "STATUS_PRIVILEGE_NOT_HELD"
	case StatusLogonFailure:
		return "STATUS_LOGON_FAILURE"
	case StatusRangeNotLocked:
		return "STATUS_RANGE_NOT_LOCKED"
	case StatusDiskFull:
		return "STATUS_DISK_FULL"
	case StatusInsufficientResources:
		return "STATUS_INSUFFICIENT_RESOURCES"
	case StatusIOTimeout:
		return "STATUS_IO_TIMEOUT"
	case StatusFileIsADirectory:
		return "STATUS_FILE_IS_A_DIRECTORY"
	case StatusNotSupported:
		return "STATUS_NOT_SUPPORTED"
	case StatusNetworkNameDeleted:
		return "STATUS_NETWORK_NAME_DELETED"
	case StatusBadNetworkName:
		return "STATUS_BAD_NETWORK_NAME"
	case StatusRequestNotAccepted:
		return "STATUS_REQUEST_NOT_ACCEPTED"
	case StatusInternalError:
		return "STATUS_INTERNAL_ERROR"
	case StatusUnexpectedIOError:
		return "STATUS_UNEXPECTED_IO_ERROR"
	case StatusDirectoryNotEmpty:
		return "STATUS_DIRECTORY_NOT_EMPTY"
	case StatusNotADirectory:
		return "STATUS_NOT_A_DIRECTORY"
	case StatusCancelled:
		return "STATUS_CANCELLED"
	case StatusFileDeleted:
		return "STATUS_FILE_DELETED"
	case StatusFileClosed:
		return "STATUS_FILE_CLOSED"
	case StatusUserSessionDeleted:
		return "STATUS_USER_SESSION_DELETED"
	case StatusNotFound:
		return "STATUS_NOT_FOUND"
	case StatusPathNotCovered:
		return "STATUS_PATH_NOT_COVERED"
	case StatusNotAReparsePoint:
		return "STATUS_NOT_A_REPARSE_POINT"
	case StatusNetworkSessionExpired:
		return "STATUS_NETWORK_SESSION_EXPIRED"
	default:
		return fmt.Sprintf("STATUS_0x%08X", uint32(s))
	}
}

// IsSuccess returns true if the status indicates success.
// NT_STATUS success codes have severity 00 (bits 30-31 are 0).
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || (uint32(s)&0x80000000) == 0
}

// IsError returns true if the status indicates an error.
// NT_STATUS error codes have severity 11 (bits 30-31 are both set).
func (s Status) IsError() bool {
	return (uint32(s) & 0xC0000000) == 0xC0000000
}

// IsWarning returns true if the status indicates a warning.
// NT_STATUS warning codes have severity 10 (bit 31 set, bit 30 clear).
func (s Status) IsWarning() bool {
	return (uint32(s) & 0xC0000000) == 0x80000000
}

// CarriesBody reports whether a reply with this status carries the
// command's regular response body rather than an SMB2 ERROR body.
//
// [MS-SMB2] 3.3.4.4: STATUS_BUFFER_OVERFLOW on QUERY_INFO, READ and IOCTL
// returns a truncated but well-formed body.
func (s Status) CarriesBody(cmd Command) bool {
	if s.IsSuccess() {
		return true
	}
	if s == StatusBufferOverflow {
		switch cmd {
		case CommandQueryInfo, CommandRead, CommandIoctl, CommandQueryDirectory:
			return true
		}
	}
	return false
}

// IsNotFound reports whether the status means the object does not exist.
func (s Status) IsNotFound() bool {
	switch s {
	case StatusObjectNameNotFound, StatusObjectPathNotFound, StatusNoSuchFile,
		StatusNotFound, StatusFileDeleted:
		return true
	}
	return false
}
