package smbtest

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

func (s *Server) addNode(path string, dir bool) (*node, error) {
	n, st := s.tree.add(path, dir)
	if st != types.StatusSuccess {
		return nil, fmt.Errorf("smbtest: add %q: %w", path, types.NewStatusError(types.CommandCreate, st))
	}
	return n, nil
}

func (s *Server) lookupNode(path string) (*node, error) {
	n := s.tree.get(path)
	if n == nil {
		return nil, fmt.Errorf("smbtest: %q: %w", path, types.NewStatusError(types.CommandCreate, types.StatusObjectNameNotFound))
	}
	return n, nil
}

// AddDir creates a directory. The parent must exist.
func (s *Server) AddDir(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.addNode(path, true)
	return err
}

// AddDirAll creates a directory and any missing parents.
func (s *Server) AddDirAll(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := strings.Split(wire.NormalizePath(path), `\`)
	for i := range parts {
		p := strings.Join(parts[:i+1], `\`)
		if n := s.tree.get(p); n != nil {
			if !n.isDir {
				return fmt.Errorf("smbtest: %q is not a directory", p)
			}
			continue
		}
		if _, err := s.addNode(p, true); err != nil {
			return err
		}
	}
	return nil
}

// AddFile creates a file holding data. The parent must exist.
func (s *Server) AddFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.addNode(path, false)
	if err != nil {
		return err
	}
	n.data = append([]byte(nil), data...)
	return nil
}

// AddStream adds a named data stream to an existing file.
func (s *Server) AddStream(path, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookupNode(path)
	if err != nil {
		return err
	}
	n.streams[strings.ToLower(name)] = &stream{name: name, data: append([]byte(nil), data...)}
	return nil
}

// AddSymlink creates a symbolic link at path pointing to target. A target
// without a leading backslash is stored as relative.
func (s *Server) AddSymlink(path, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.addNode(path, false)
	if err != nil {
		return err
	}
	link := &wire.SymlinkTarget{SubstituteName: target, PrintName: target}
	if !strings.HasPrefix(target, `\`) {
		link.Flags = wire.SymlinkFlagRelative
	}
	n.symlink = link
	return nil
}

// SetAttributes replaces the stored attributes of path. Directory and
// reparse-point bits are derived and need not be passed.
func (s *Server) SetAttributes(path string, attrs types.FileAttributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookupNode(path)
	if err != nil {
		return err
	}
	n.attrs = attrs &^ (types.FileAttributeDirectory | types.FileAttributeReparsePoint | types.FileAttributeNormal)
	return nil
}

// Deny makes every open of path fail with STATUS_ACCESS_DENIED.
func (s *Server) Deny(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookupNode(path)
	if err != nil {
		return err
	}
	n.denied = true
	return nil
}

// SetMaxAccess sets the mask reported for path by the MxAc context.
func (s *Server) SetMaxAccess(path string, mask uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookupNode(path)
	if err != nil {
		return err
	}
	n.maxAccess = mask
	return nil
}

// DenyMaxAccess makes the MxAc query of path fail with
// STATUS_ACCESS_DENIED while the open itself succeeds.
func (s *Server) DenyMaxAccess(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookupNode(path)
	if err != nil {
		return err
	}
	n.maxAccessDenied = true
	return nil
}

// ReadFile returns a copy of the unnamed data stream of path, or of a
// named stream when path has a ":stream" suffix.
func (s *Server) ReadFile(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, streamName := splitStream(path)
	n := s.tree.get(p)
	if n == nil || n.isDir {
		return nil, false
	}
	if streamName == "" {
		return append([]byte(nil), n.data...), true
	}
	st := n.streams[strings.ToLower(streamName)]
	if st == nil {
		return nil, false
	}
	return append([]byte(nil), st.data...), true
}

// Exists reports whether path names a file, directory or link.
func (s *Server) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.get(path) != nil
}

// Attributes returns the attributes the server reports for path.
func (s *Server) Attributes(path string) (types.FileAttributes, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.tree.get(path)
	if n == nil {
		return 0, false
	}
	return n.attributes(), true
}
