// Package infomap implements the path-tree info-map described in spec
// §4.B: a tree of files and directories, each carrying a revision and
// checksum, read from and written to a line-oriented text format, with
// walk/filter/prune operations used by the sync planner (§4.E).
package infomap

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/instl-run/instl/pkg/xerrors"
)

// Kind distinguishes a leaf file from an internal directory node.
type Kind int

const (
	File Kind = iota
	Dir
)

// Node is one entry of the info-map tree. Directory nodes have Children and
// no Checksum/Size; their Revision is always the max of their children's.
type Node struct {
	Name         string
	Kind         Kind
	Revision     int64
	Checksum     string
	Size         int64
	Flags        string
	DownloadPath string
	UserData     any
	Children     map[string]*Node
}

func newDirNode(name string) *Node {
	return &Node{Name: name, Kind: Dir, Children: make(map[string]*Node)}
}

// Tree is a whole info-map rooted at an unnamed directory node.
type Tree struct {
	root *Node
}

// New returns an empty info-map.
func New() *Tree {
	return &Tree{root: newDirNode("")}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// getOrCreateParent walks/creates the directory chain for parts[:len-1] and
// returns the parent directory node.
func (t *Tree) getOrCreateParent(parts []string) *Node {
	cur := t.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := cur.Children[part]
		if !ok {
			child = newDirNode(part)
			cur.Children[part] = child
		}
		cur = child
	}
	return cur
}

// Set inserts or replaces a file leaf at path, then re-derives every
// ancestor's revision as the max of its children.
func (t *Tree) Set(path string, revision int64, checksum string, size int64, flags string) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return
	}
	parent := t.getOrCreateParent(parts)
	leaf := parts[len(parts)-1]
	parent.Children[leaf] = &Node{
		Name: leaf, Kind: File, Revision: revision,
		Checksum: checksum, Size: size, Flags: flags,
	}
	t.propagateRevision(parts[:len(parts)-1])
}

func (t *Tree) propagateRevision(dirParts []string) {
	// Walk from root down to the deepest changed directory, recomputing
	// each ancestor's revision on the way back up.
	chain := []*Node{t.root}
	cur := t.root
	for _, part := range dirParts {
		cur = cur.Children[part]
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if n.Kind != Dir {
			continue
		}
		var max int64
		for _, c := range n.Children {
			if c.Revision > max {
				max = c.Revision
			}
		}
		n.Revision = max
	}
}

// Get looks up the node at path.
func (t *Tree) Get(path string) (*Node, bool) {
	parts := splitPath(path)
	cur := t.root
	for _, part := range parts {
		next, ok := cur.Children[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// WalkFunc is called for every node in depth-first, name-sorted order, with
// the node's full slash-separated path.
type WalkFunc func(path string, n *Node)

// Walk visits every node for which filter returns true (filter may be nil,
// meaning visit everything).
func (t *Tree) Walk(filter func(path string, n *Node) bool, fn WalkFunc) {
	t.walk(t.root, "", filter, fn)
}

func (t *Tree) walk(n *Node, prefix string, filter func(string, *Node) bool, fn WalkFunc) {
	for _, name := range sortedKeys(n.Children) {
		child := n.Children[name]
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		if filter == nil || filter(path, child) {
			fn(path, child)
		}
		if child.Kind == Dir {
			t.walk(child, path, filter, fn)
		}
	}
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scope selects which nodes SetUserData touches.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeOnly
	ScopeFile
	ScopeDir
)

// SetUserData attaches value to nodes matching scope: ScopeAll touches every
// node, ScopeOnly touches just the root, ScopeFile/ScopeDir touch only
// leaves/directories respectively.
func (t *Tree) SetUserData(value any, scope Scope) {
	if scope == ScopeOnly {
		t.root.UserData = value
		return
	}
	if scope != ScopeFile {
		t.root.UserData = value
	}
	t.Walk(nil, func(_ string, n *Node) {
		switch scope {
		case ScopeFile:
			if n.Kind == File {
				n.UserData = value
			}
		case ScopeDir:
			if n.Kind == Dir {
				n.UserData = value
			}
		default:
			n.UserData = value
		}
	})
}

// RemoveIf removes every node for which pred returns true, post-order (a
// directory is only removed after its children have been considered), then
// prunes any directory left empty by the removal.
func (t *Tree) RemoveIf(pred func(path string, n *Node) bool) {
	t.removeIf(t.root, "", pred)
}

func (t *Tree) removeIf(n *Node, prefix string, pred func(string, *Node) bool) {
	for _, name := range sortedKeys(n.Children) {
		child := n.Children[name]
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		if child.Kind == Dir {
			t.removeIf(child, path, pred)
		}
		remove := pred(path, child)
		if !remove && child.Kind == Dir && len(child.Children) == 0 {
			remove = true
		}
		if remove {
			delete(n.Children, name)
		}
	}
	if n.Kind == Dir {
		var max int64
		for _, c := range n.Children {
			if c.Revision > max {
				max = c.Revision
			}
		}
		n.Revision = max
	}
}

// RemoveAt deletes the node at path, returning ErrFileNotFound if absent.
func (t *Tree) RemoveAt(path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return xerrors.Wrap(xerrors.ErrFileNotFound, "cannot remove root")
	}
	parent := t.root
	for _, part := range parts[:len(parts)-1] {
		next, ok := parent.Children[part]
		if !ok {
			return xerrors.Wrapf(xerrors.ErrFileNotFound, "path %s", path)
		}
		parent = next
	}
	leaf := parts[len(parts)-1]
	if _, ok := parent.Children[leaf]; !ok {
		return xerrors.Wrapf(xerrors.ErrFileNotFound, "path %s", path)
	}
	delete(parent.Children, leaf)
	t.propagateRevision(parts[:len(parts)-1])
	return nil
}

// FilterInVersion keeps only file leaves whose revision equals v, then
// prunes directories left empty.
func (t *Tree) FilterInVersion(v int64) {
	t.RemoveIf(func(_ string, n *Node) bool {
		return n.Kind == File && n.Revision != v
	})
}

// ApplyBaseRevisionSweep raises every node's revision to at least baseRev,
// modelling that files unchanged since the base revision belong to the
// current revision for staleness checks.
func (t *Tree) ApplyBaseRevisionSweep(baseRev int64) {
	t.Walk(nil, func(_ string, n *Node) {
		if n.Revision < baseRev {
			n.Revision = baseRev
		}
	})
	if t.root.Revision < baseRev {
		t.root.Revision = baseRev
	}
}

// ReadFrom parses the line-oriented info-map format:
// "<path>, <flags>, <revision>[, <checksum>, <size>]". Lines starting with
// # are comments; blank lines are skipped.
func ReadFrom(r io.Reader) (*Tree, error) {
	t := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitCSVFields(line)
		if len(fields) < 3 {
			return nil, xerrors.Wrapf(xerrors.ErrValidation, "info-map line %d: expected at least 3 fields, got %d", lineNo, len(fields))
		}
		path := fields[0]
		flags := fields[1]
		revision, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, xerrors.Wrapf(xerrors.ErrValidation, "info-map line %d: bad revision %q", lineNo, fields[2])
		}
		var checksum string
		var size int64
		if len(fields) > 3 {
			checksum = fields[3]
		}
		if len(fields) > 4 {
			size, err = strconv.ParseInt(fields[4], 10, 64)
			if err != nil {
				return nil, xerrors.Wrapf(xerrors.ErrValidation, "info-map line %d: bad size %q", lineNo, fields[4])
			}
		}
		t.Set(path, revision, checksum, size, flags)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Wrap(err, "read info-map")
	}
	return t, nil
}

func splitCSVFields(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// Write renders the tree back into the line-oriented format, file leaves
// only, in sorted path order.
func (t *Tree) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var walkErr error
	t.Walk(func(_ string, n *Node) bool { return n.Kind == File }, func(path string, n *Node) {
		if walkErr != nil {
			return
		}
		_, err := fmt.Fprintf(bw, "%s, %s, %d, %s, %d\n", path, n.Flags, n.Revision, n.Checksum, n.Size)
		if err != nil {
			walkErr = err
		}
	})
	if walkErr != nil {
		return xerrors.Wrap(walkErr, "write info-map")
	}
	return bw.Flush()
}
