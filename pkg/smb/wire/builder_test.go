package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/types"
)

func TestBuildCreateDerivesFields(t *testing.T) {
	tests := []struct {
		name    string
		intent  CreateIntent
		attrs   types.FileAttributes
		options types.CreateOptions
		path    string
	}{
		{
			name:    "OpenExistingFile",
			intent:  CreateIntent{Path: "dir/file.txt", Access: types.GenericRead, Disposition: types.FileOpen},
			attrs:   types.FileAttributeNormal,
			options: 0,
			path:    `dir\file.txt`,
		},
		{
			name:    "CreateNewFileGainsArchive",
			intent:  CreateIntent{Path: "new.bin", Access: types.GenericWrite, Disposition: types.FileCreate},
			attrs:   types.FileAttributeArchive,
			options: 0,
			path:    "new.bin",
		},
		{
			name:    "CreateStreamStaysNormal",
			intent:  CreateIntent{Path: "doc", Stream: "meta", Access: types.GenericWrite, Disposition: types.FileOverwriteIf},
			attrs:   types.FileAttributeNormal,
			options: 0,
			path:    "doc:meta",
		},
		{
			name:    "DotFileIsHidden",
			intent:  CreateIntent{Path: `a\.profile`, Access: types.GenericWrite, Disposition: types.FileCreate},
			attrs:   types.FileAttributeArchive | types.FileAttributeHidden,
			options: 0,
			path:    `a\.profile`,
		},
		{
			name:    "Directory",
			intent:  CreateIntent{Path: "/sub/dir/", Access: types.FileReadAttributes, Disposition: types.FileCreate, IsDir: true},
			attrs:   types.FileAttributeNormal,
			options: types.FileDirectoryFile,
			path:    `sub\dir`,
		},
		{
			name:    "CallerReparseBitIsIgnored",
			intent:  CreateIntent{Path: "f", Disposition: types.FileOpen, Options: types.FileOpenReparsePoint | types.FileWriteThrough},
			attrs:   types.FileAttributeNormal,
			options: types.FileWriteThrough,
			path:    "f",
		},
		{
			name:    "ManipulateReparse",
			intent:  CreateIntent{Path: "link", Disposition: types.FileOpen, ManipulateReparse: true},
			attrs:   types.FileAttributeNormal,
			options: types.FileOpenReparsePoint,
			path:    "link",
		},
		{
			name:    "DatalessTarget",
			intent:  CreateIntent{Path: "cold", Disposition: types.FileOpen, KnownAttributes: types.FileAttributeRecallOnDataAccess},
			attrs:   types.FileAttributeNormal,
			options: types.FileOpenReparsePoint,
			path:    "cold",
		},
		{
			name:    "EnumeratedSymlink",
			intent:  CreateIntent{Path: "ln", Disposition: types.FileOpen, EnumeratedSymlink: true},
			attrs:   types.FileAttributeNormal,
			options: types.FileOpenReparsePoint,
			path:    "ln",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := BuildCreate(&tt.intent)
			require.NoError(t, err)
			assert.Equal(t, tt.attrs, req.FileAttributes)
			assert.Equal(t, tt.options, req.Options)
			assert.Equal(t, tt.path, req.Name)
			assert.Equal(t, types.FileShareAll, req.ShareAccess)
			assert.Equal(t, ImpersonationImpersonation, req.ImpersonationLevel)
		})
	}
}

func TestBuildCreateRejectsInvalidIntents(t *testing.T) {
	tests := []struct {
		name   string
		intent CreateIntent
	}{
		{"DirectoryWithStream", CreateIntent{Path: "d", Stream: "s", IsDir: true}},
		{"StreamOnShareRoot", CreateIntent{Path: "/", Stream: "s"}},
		{"DeleteOnCloseWithoutDelete", CreateIntent{Path: "f", Access: types.GenericRead, Options: types.FileDeleteOnClose}},
		{"UnknownDisposition", CreateIntent{Path: "f", Disposition: 9}},
		{"DirectoryWithNonDirectoryOption", CreateIntent{Path: "d", IsDir: true, Options: types.FileNonDirectoryFile}},
		{"StreamNameWithColon", CreateIntent{Path: "f", Stream: "a:b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildCreate(&tt.intent)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestBuildCreateDeleteOnCloseWithDelete(t *testing.T) {
	req, err := BuildCreate(&CreateIntent{
		Path:        "tmp",
		Access:      types.Delete | types.GenericWrite,
		Disposition: types.FileCreate,
		Options:     types.FileDeleteOnClose,
	})
	require.NoError(t, err)
	assert.Equal(t, types.FileDeleteOnClose, req.Options)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, `a\b\c`, NormalizePath("/a/b/c/"))
	assert.Equal(t, "", NormalizePath(`\`))
	assert.Equal(t, `a\b`, JoinPath("a", "b"))
	assert.Equal(t, "b", JoinPath("", "/b"))
	assert.Equal(t, "c", LeafName("a/b/c"))
	assert.Equal(t, `a\b`, ParentPath("a/b/c"))
	assert.Equal(t, "", ParentPath("c"))
	assert.Equal(t, `a\b:s`, StreamPath("a/b", "s"))
}
