// Package indexio parses the index and require YAML documents described in
// spec §6's "Index input" contract: a mapping from IID to item record, with
// install_sources entries tagged !dir/!dir_cont/!files/!file and optional
// OS-keyed override submaps (Mac, Mac32, Mac64, Win, Win32, Win64).
package indexio

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/instl-run/instl/pkg/platform"
	"github.com/instl-run/instl/pkg/xerrors"
)

// SourceTag is the YAML tag on an install_sources/previous_sources entry.
type SourceTag string

const (
	TagDir     SourceTag = "!dir"
	TagDirCont SourceTag = "!dir_cont"
	TagFiles   SourceTag = "!files"
	TagFile    SourceTag = "!file"
)

// Source is one install_sources or previous_sources entry.
type Source struct {
	Path string
	Tag  SourceTag
}

// UnmarshalYAML reads a scalar source path, taking its tag (defaulting to
// !dir when untagged, per spec §6).
func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	if err := node.Decode(&s.Path); err != nil {
		return err
	}
	switch SourceTag(node.Tag) {
	case TagDir, TagDirCont, TagFiles, TagFile:
		s.Tag = SourceTag(node.Tag)
	default:
		s.Tag = TagDir
	}
	return nil
}

// Item is one index entry, keyed by IID in the enclosing document.
type Item struct {
	Name            string            `yaml:"name"`
	GUID            string            `yaml:"guid"`
	InstallSources  []Source          `yaml:"install_sources"`
	InstallFolders  []string          `yaml:"install_folders"`
	Inherit         []string          `yaml:"inherit"`
	Depends         []string          `yaml:"depends"`
	Actions         map[string][]string `yaml:"actions"`
	Remark          string            `yaml:"remark"`
	Version         string            `yaml:"version"`
	PhantomVersion  string            `yaml:"phantom_version"`
	DirectSync      bool              `yaml:"direct_sync"`
	PreviousSources []Source          `yaml:"previous_sources"`
	InfoMap         string            `yaml:"info_map"`

	// OSOverrides holds the OS-keyed submaps (Mac, Mac32, Mac64, Win,
	// Win32, Win64), each itself a partial Item overriding install_sources,
	// install_folders etc. for that OS only.
	OSOverrides map[string]*Item `yaml:"-"`
}

var knownOSKeys = map[string]bool{
	platform.Mac: true, platform.Mac32: true, platform.Mac64: true,
	platform.Win: true, platform.Win32: true, platform.Win64: true,
}

// UnmarshalYAML decodes the known item fields plus, separately, any
// OS-named sibling keys into OSOverrides.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	type plain Item // avoid infinite recursion through UnmarshalYAML
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*it = Item(p)
	it.OSOverrides = make(map[string]*Item)

	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !knownOSKeys[key] {
			continue
		}
		var sub Item
		if err := node.Content[i+1].Decode(&sub); err != nil {
			return xerrors.Wrapf(err, "decode OS override %s", key)
		}
		it.OSOverrides[key] = &sub
	}
	return nil
}

// Document is a full index file: IID to Item.
type Document map[string]*Item

// ReadIndex parses an index YAML document from r.
func ReadIndex(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Wrap(err, "read index document")
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, xerrors.Wrapf(xerrors.ErrValidation, "parse index document: %v", err)
	}
	return doc, nil
}

// RequireItem is one require-document entry (spec §3/§6). Unlike an index
// item, a require entry is either a mapping of guid/version/require_by, or
// (per §6) a bare sequence that is entirely require_by values.
type RequireItem struct {
	GUIDs     []string
	Version   string
	RequireBy []string
}

// UnmarshalYAML accepts both require-node shapes the original reads
// (pyinstl's read_item_details_from_require_node): a mapping keyed by
// guid/version/require_by, or a bare sequence of require_by names.
func (it *RequireItem) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&it.RequireBy)
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			val := node.Content[i+1]
			var err error
			switch key {
			case "guid":
				err = val.Decode(&it.GUIDs)
			case "version":
				err = val.Decode(&it.Version)
			case "require_by":
				err = val.Decode(&it.RequireBy)
			}
			if err != nil {
				return xerrors.Wrapf(err, "decode require field %s", key)
			}
		}
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrValidation, "require item: unexpected yaml node kind %d", node.Kind)
	}
}

// RequireDocument is a full require file: IID to RequireItem.
type RequireDocument map[string]*RequireItem

// ReadRequire parses a require YAML document from r, holding the
// currently-installed item set, their require_version, and the
// require_by/deprecated_require_by names split later by indexstore against
// the live IID set.
func ReadRequire(r io.Reader) (RequireDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Wrap(err, "read require document")
	}
	var doc RequireDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, xerrors.Wrapf(xerrors.ErrValidation, "parse require document: %v", err)
	}
	return doc, nil
}
