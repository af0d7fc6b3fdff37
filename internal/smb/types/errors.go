package types

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// StatusError is a non-success NT_STATUS returned by the server for a
// specific command.
type StatusError struct {
	Status  Status
	Command Command
}

// NewStatusError wraps a status returned for cmd.
func NewStatusError(cmd Command, status Status) *StatusError {
	return &StatusError{Status: status, Command: cmd}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("smb2 %s: %s", e.Command, e.Status)
}

// Is makes StatusError comparable with the io/fs sentinels and with other
// StatusErrors carrying the same status.
func (e *StatusError) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Status.IsNotFound()
	case fs.ErrExist:
		return e.Status == StatusObjectNameCollision
	case fs.ErrPermission:
		return e.Status == StatusAccessDenied || e.Status == StatusPrivilegeNotHeld
	}
	var other *StatusError
	if errors.As(target, &other) {
		return other.Status == e.Status
	}
	return false
}

// Errno maps the status to the closest POSIX error number.
func (e *StatusError) Errno() unix.Errno {
	return StatusToErrno(e.Status)
}

// StatusToErrno maps an NT_STATUS to a POSIX errno. Unmapped error statuses
// become EIO.
func StatusToErrno(s Status) unix.Errno {
	switch s {
	case StatusSuccess:
		return 0
	case StatusObjectNameNotFound, StatusObjectPathNotFound, StatusNoSuchFile,
		StatusNotFound, StatusFileDeleted:
		return unix.ENOENT
	case StatusObjectNameCollision:
		return unix.EEXIST
	case StatusAccessDenied, StatusPrivilegeNotHeld:
		return unix.EACCES
	case StatusSharingViolation, StatusLockNotGranted:
		return unix.EBUSY
	case StatusDeletePending:
		return unix.EPERM
	case StatusFileIsADirectory:
		return unix.EISDIR
	case StatusNotADirectory:
		return unix.ENOTDIR
	case StatusDirectoryNotEmpty:
		return unix.ENOTEMPTY
	case StatusDiskFull:
		return unix.ENOSPC
	case StatusInvalidParameter, StatusInvalidInfoClass, StatusObjectNameInvalid,
		StatusObjectPathInvalid, StatusObjectPathSyntaxBad, StatusInfoLengthMismatch:
		return unix.EINVAL
	case StatusNotSupported, StatusNotImplemented, StatusInvalidDeviceRequest:
		return unix.ENOTSUP
	case StatusNotAReparsePoint:
		return unix.EINVAL
	case StatusStoppedOnSymlink:
		return unix.ELOOP
	case StatusIOTimeout:
		return unix.ETIMEDOUT
	case StatusInsufficientResources:
		return unix.ENOMEM
	case StatusInvalidHandle, StatusFileClosed:
		return unix.EBADF
	case StatusEAListInconsistent:
		return unix.EINVAL
	case StatusBufferOverflow, StatusBufferTooSmall:
		return unix.ERANGE
	case StatusCancelled:
		return unix.ECANCELED
	case StatusNetworkNameDeleted, StatusUserSessionDeleted, StatusNetworkSessionExpired:
		return unix.ENOTCONN
	}
	if s.IsSuccess() {
		return 0
	}
	return unix.EIO
}

// StatusOf extracts the NT_STATUS carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// HasStatus reports whether err carries one of the given statuses.
func HasStatus(err error, statuses ...Status) bool {
	s, ok := StatusOf(err)
	if !ok {
		return false
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
