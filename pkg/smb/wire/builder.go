package wire

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittosmb/internal/smb/types"
)

// CreateIntent describes an open in filesystem terms. BuildCreate derives the
// protocol fields from it.
type CreateIntent struct {
	// Path is share-relative; '/' and '\' are both accepted as separators.
	Path string
	// Stream names an alternate data stream of Path.
	Stream      string
	Access      uint32
	Disposition types.CreateDisposition
	// Options are additional create options. FileOpenReparsePoint is
	// controlled by the fields below and ignored here.
	Options     types.CreateOptions
	ShareAccess uint32
	IsDir       bool
	// ManipulateReparse opens the reparse point itself instead of following it.
	ManipulateReparse bool
	// KnownAttributes are the cached attributes of an existing target.
	// Dataless items (offline or recall-on-access) are opened without
	// triggering a recall.
	KnownAttributes types.FileAttributes
	// EnumeratedSymlink marks a target that a parent listing reported as a
	// symbolic link.
	EnumeratedSymlink bool
	OplockLevel       uint8
	Contexts          []CreateContext
}

// BuildCreate translates an intent into a CREATE request. It performs no I/O.
func BuildCreate(in *CreateIntent) (*CreateRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	req := &CreateRequest{
		OplockLevel:        in.OplockLevel,
		ImpersonationLevel: ImpersonationImpersonation,
		DesiredAccess:      in.Access,
		FileAttributes:     createAttributes(in),
		ShareAccess:        in.ShareAccess,
		Disposition:        in.Disposition,
		Options:            createOptions(in),
		Name:               StreamPath(in.Path, in.Stream),
		Contexts:           in.Contexts,
	}
	if req.ShareAccess == 0 {
		req.ShareAccess = types.FileShareAll
	}
	return req, nil
}

func (in *CreateIntent) validate() error {
	switch {
	case in.IsDir && in.Stream != "":
		return fmt.Errorf("%w: directory %q cannot carry stream %q", ErrInvalidArgument, in.Path, in.Stream)
	case NormalizePath(in.Path) == "" && in.Stream != "":
		return fmt.Errorf("%w: stream %q on share root", ErrInvalidArgument, in.Stream)
	case in.Disposition > types.FileOverwriteIf:
		return fmt.Errorf("%w: disposition %d", ErrInvalidArgument, in.Disposition)
	case in.Options&types.FileDeleteOnClose != 0 && in.Access&(types.Delete|types.GenericAll) == 0:
		return fmt.Errorf("%w: delete-on-close without DELETE access", ErrInvalidArgument)
	case in.IsDir && in.Options&types.FileNonDirectoryFile != 0:
		return fmt.Errorf("%w: directory open with non-directory option", ErrInvalidArgument)
	case strings.ContainsRune(in.Stream, ':'):
		return fmt.Errorf("%w: stream name %q", ErrInvalidArgument, in.Stream)
	}
	return nil
}

// createAttributes: Normal unless another bit applies, since Normal is only
// valid alone.
func createAttributes(in *CreateIntent) types.FileAttributes {
	var attrs types.FileAttributes
	if in.Disposition.Creates() && in.Stream == "" && !in.IsDir {
		attrs |= types.FileAttributeArchive
	}
	if strings.HasPrefix(LeafName(in.Path), ".") {
		attrs |= types.FileAttributeHidden
	}
	if attrs == 0 {
		return types.FileAttributeNormal
	}
	return attrs
}

func createOptions(in *CreateIntent) types.CreateOptions {
	opts := in.Options &^ types.FileOpenReparsePoint
	if in.IsDir {
		opts |= types.FileDirectoryFile
	}
	if in.ManipulateReparse || in.KnownAttributes.IsDataless() || in.EnumeratedSymlink {
		opts |= types.FileOpenReparsePoint
	}
	return opts
}

// NormalizePath converts a path to the SMB2 form: backslash separators and
// no leading or trailing separator.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)
	return strings.Trim(p, `\`)
}

// JoinPath joins a directory and a leaf name.
func JoinPath(dir, name string) string {
	dir = NormalizePath(dir)
	if dir == "" {
		return NormalizePath(name)
	}
	return dir + `\` + NormalizePath(name)
}

// StreamPath returns the CREATE name of a stream of path.
func StreamPath(path, stream string) string {
	path = NormalizePath(path)
	if stream == "" {
		return path
	}
	return path + ":" + stream
}

// LeafName returns the last component of path.
func LeafName(path string) string {
	path = NormalizePath(path)
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ParentPath returns the directory component of path.
func ParentPath(path string) string {
	path = NormalizePath(path)
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		return path[:i]
	}
	return ""
}
