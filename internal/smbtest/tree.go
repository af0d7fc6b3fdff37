package smbtest

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// node is one file, directory or symbolic link.
type node struct {
	name    string
	isDir   bool
	data    []byte
	streams map[string]*stream
	attrs   types.FileAttributes
	index   uint64
	symlink *wire.SymlinkTarget

	created, accessed, written, changed time.Time

	// denied makes every open fail with STATUS_ACCESS_DENIED.
	denied bool
	// maxAccess is reported through MxAc; zero means FileAllAccess.
	maxAccess uint32
	// maxAccessDenied makes the MxAc query itself fail.
	maxAccessDenied bool
}

type stream struct {
	name string
	data []byte
}

func (n *node) attributes() types.FileAttributes {
	a := n.attrs
	if n.isDir {
		a |= types.FileAttributeDirectory
	}
	if n.symlink != nil {
		a |= types.FileAttributeReparsePoint
	}
	if a == 0 {
		a = types.FileAttributeNormal
	}
	return a
}

func (n *node) streamList() []wire.StreamInfo {
	var out []wire.StreamInfo
	if !n.isDir {
		out = append(out, wire.StreamInfo{Name: "", Size: uint64(len(n.data)), AllocationSize: allocSize(len(n.data))})
	}
	for _, k := range slices.Sorted(maps.Keys(n.streams)) {
		s := n.streams[k]
		out = append(out, wire.StreamInfo{Name: s.name, Size: uint64(len(s.data)), AllocationSize: allocSize(len(s.data))})
	}
	return out
}

func (n *node) touch(now time.Time) {
	n.written, n.changed = now, now
}

func allocSize(n int) uint64 {
	return uint64((n + 4095) &^ 4095)
}

// tree maps case-folded share-relative paths to nodes. The root has the
// empty key.
type tree struct {
	nodes     map[string]*node
	nextIndex uint64
	now       func() time.Time
}

func newTree(now func() time.Time) *tree {
	t := &tree{nodes: make(map[string]*node), nextIndex: 1, now: now}
	t.nodes[""] = t.newNode("", true)
	return t
}

func key(path string) string {
	return strings.ToLower(wire.NormalizePath(path))
}

func (t *tree) newNode(name string, dir bool) *node {
	now := t.now()
	n := &node{
		name:     name,
		isDir:    dir,
		streams:  make(map[string]*stream),
		index:    t.nextIndex,
		created:  now,
		accessed: now,
		written:  now,
		changed:  now,
	}
	t.nextIndex++
	return n
}

func (t *tree) get(path string) *node { return t.nodes[key(path)] }

// add inserts a node at path. The parent must exist and be a directory.
func (t *tree) add(path string, dir bool) (*node, types.Status) {
	path = wire.NormalizePath(path)
	parent := t.get(wire.ParentPath(path))
	switch {
	case parent == nil:
		return nil, types.StatusObjectPathNotFound
	case !parent.isDir:
		return nil, types.StatusNotADirectory
	case t.get(path) != nil:
		return nil, types.StatusObjectNameCollision
	}
	n := t.newNode(wire.LeafName(path), dir)
	t.nodes[key(path)] = n
	parent.touch(t.now())
	return n, types.StatusSuccess
}

// children returns the direct children of dir sorted by name.
func (t *tree) children(dir string) []*node {
	prefix := key(dir)
	if prefix != "" {
		prefix += `\`
	}
	var out []*node
	for k, n := range t.nodes {
		if k == "" || !strings.HasPrefix(k, prefix) {
			continue
		}
		if strings.Contains(k[len(prefix):], `\`) {
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *node) int { return strings.Compare(a.name, b.name) })
	return out
}

func (t *tree) remove(path string) {
	k := key(path)
	for other := range t.nodes {
		if other == k || strings.HasPrefix(other, k+`\`) {
			delete(t.nodes, other)
		}
	}
}

// move re-keys path and its descendants under newPath.
func (t *tree) move(path, newPath string) {
	from, to := key(path), key(newPath)
	moved := make(map[string]*node)
	for k, n := range t.nodes {
		switch {
		case k == from:
			moved[to] = n
		case strings.HasPrefix(k, from+`\`):
			moved[to+k[len(from):]] = n
		default:
			continue
		}
		delete(t.nodes, k)
	}
	maps.Copy(t.nodes, moved)
	if n := t.nodes[to]; n != nil {
		n.name = wire.LeafName(wire.NormalizePath(newPath))
		n.changed = t.now()
	}
}

// lookupResult is the outcome of resolving a path component by component.
type lookupResult struct {
	node   *node
	status types.Status
	// symlink is set with STATUS_STOPPED_ON_SYMLINK.
	symlink *wire.SymlinkTarget
}

// resolve walks path. Symbolic links in intermediate components always
// stop the walk; a link in the last component stops it unless
// openReparse is set.
func (t *tree) resolve(path string, openReparse bool) lookupResult {
	path = wire.NormalizePath(path)
	if path == "" {
		return lookupResult{node: t.nodes[""]}
	}
	parts := strings.Split(path, `\`)
	for i := range parts {
		prefix := strings.Join(parts[:i+1], `\`)
		n := t.get(prefix)
		last := i == len(parts)-1
		if n == nil {
			if last {
				return lookupResult{status: types.StatusObjectNameNotFound}
			}
			return lookupResult{status: types.StatusObjectPathNotFound}
		}
		if n.symlink != nil && (!last || !openReparse) {
			target := *n.symlink
			if !last {
				rest := `\` + strings.Join(parts[i+1:], `\`)
				target.UnparsedPathLength = uint16(2 * len([]rune(rest)))
			}
			return lookupResult{status: types.StatusStoppedOnSymlink, symlink: &target}
		}
		if !last && !n.isDir {
			return lookupResult{status: types.StatusObjectPathNotFound}
		}
		if last {
			return lookupResult{node: n}
		}
	}
	return lookupResult{status: types.StatusObjectNameNotFound}
}

// splitStream separates "path:stream[:$DATA]" into its parts.
func splitStream(name string) (path, streamName string) {
	name = wire.NormalizePath(name)
	leafStart := strings.LastIndex(name, `\`) + 1
	i := strings.Index(name[leafStart:], ":")
	if i < 0 {
		return name, ""
	}
	path = name[:leafStart+i]
	streamName = strings.TrimSuffix(name[leafStart+i+1:], ":$DATA")
	return path, streamName
}
