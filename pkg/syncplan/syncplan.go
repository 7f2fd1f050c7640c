// Package syncplan implements the sync planner (spec §4.E): reconciling a
// remote info-map against an optional have-map and the set of required
// install sources, producing a minimal download list and the replacement
// have-map to adopt on success.
package syncplan

import (
	"sort"
	"strings"

	"github.com/instl-run/instl/pkg/indexio"
	"github.com/instl-run/instl/pkg/infomap"
	"github.com/instl-run/instl/pkg/xerrors"
)

// WtarSuffix marks a file as a packed archive that must be unpacked after
// download, per spec §4.E step 6.
const WtarSuffix = ".wtar"

// SourceRequest is one active install_sources entry to resolve against the
// remote tree.
type SourceRequest struct {
	Path string
	Tag  indexio.SourceTag
}

// DownloadOp is one file to fetch from the remote repository.
type DownloadOp struct {
	Path       string // path within the repository tree
	Revision   int64
	Checksum   string
	Flags      string
	NeedsUnwtar bool
}

// Result is the outcome of Reconcile.
type Result struct {
	Downloads []DownloadOp
	NewHave   *infomap.Tree
}

// Reconcile marks every file reachable from sources as needed, leaves
// everything else in remote out of the result (remote itself is not
// modified), diffs the needed files against have (nil
// meaning "nothing installed yet"), and returns the files that must be
// downloaded plus the have-map to adopt after a successful sync.
func Reconcile(remote *infomap.Tree, have *infomap.Tree, sources []SourceRequest) (*Result, error) {
	needed, err := resolveNeeded(remote, sources)
	if err != nil {
		return nil, err
	}

	newHave := infomap.New()
	var downloads []DownloadOp
	for _, path := range needed {
		node, ok := remote.Get(path)
		if !ok {
			continue
		}
		if have != nil {
			if h, ok := have.Get(path); ok && h.Revision == node.Revision {
				// Already present at the required revision: carry forward
				// unchanged, no download needed.
				newHave.Set(path, h.Revision, h.Checksum, h.Size, h.Flags)
				continue
			}
		}
		newHave.Set(path, node.Revision, node.Checksum, node.Size, node.Flags)
		downloads = append(downloads, DownloadOp{
			Path: path, Revision: node.Revision, Checksum: node.Checksum,
			Flags: node.Flags, NeedsUnwtar: strings.HasSuffix(path, WtarSuffix),
		})
	}
	return &Result{Downloads: downloads, NewHave: newHave}, nil
}

// resolveNeeded expands each source request into the set of remote paths it
// requires present, per the !file/!files/!dir/!dir_cont tag semantics.
func resolveNeeded(remote *infomap.Tree, sources []SourceRequest) ([]string, error) {
	seen := make(map[string]bool)
	for _, src := range sources {
		node, ok := remote.Get(src.Path)
		if !ok {
			return nil, xerrors.Wrapf(xerrors.ErrSourceNotFound, "%s", src.Path)
		}
		switch src.Tag {
		case indexio.TagFile, "":
			if node.Kind != infomap.File {
				return nil, xerrors.Wrapf(xerrors.ErrTypeMismatch, "%s: expected file", src.Path)
			}
			seen[src.Path] = true
		case indexio.TagFiles:
			if node.Kind != infomap.Dir {
				return nil, xerrors.Wrapf(xerrors.ErrTypeMismatch, "%s: expected directory", src.Path)
			}
			for name, child := range node.Children {
				if child.Kind == infomap.File {
					seen[joinPath(src.Path, name)] = true
				}
			}
		case indexio.TagDir, indexio.TagDirCont:
			if node.Kind != infomap.Dir {
				return nil, xerrors.Wrapf(xerrors.ErrTypeMismatch, "%s: expected directory", src.Path)
			}
			remote.Walk(func(path string, n *infomap.Node) bool {
				return n.Kind == infomap.File && strings.HasPrefix(path, src.Path+"/")
			}, func(path string, _ *infomap.Node) {
				seen[path] = true
			})
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out) // deterministic download order, independent of map iteration
	return out, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
