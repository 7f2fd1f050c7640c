package indexio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadIndexParsesSourcesAndDefaultsUntaggedToDir(t *testing.T) {
	doc, err := ReadIndex(strings.NewReader(`
TOOL_IID:
  name: My Tool
  guid: 1234-ABCD
  install_sources:
    - !dir bin
    - !file README.md
    - untagged/path
  install_folders:
    - /Apps/MyTool
  depends: [OTHER_IID]
  version: "1.2.3"
`))
	require.NoError(t, err)
	require.Contains(t, doc, "TOOL_IID")

	it := doc["TOOL_IID"]
	assert.Equal(t, "My Tool", it.Name)
	assert.Equal(t, "1234-ABCD", it.GUID)
	require.Len(t, it.InstallSources, 3)
	assert.Equal(t, Source{Path: "bin", Tag: TagDir}, it.InstallSources[0])
	assert.Equal(t, Source{Path: "README.md", Tag: TagFile}, it.InstallSources[1])
	assert.Equal(t, Source{Path: "untagged/path", Tag: TagDir}, it.InstallSources[2])
	assert.Equal(t, []string{"OTHER_IID"}, it.Depends)
	assert.Equal(t, "1.2.3", it.Version)
}

func TestReadIndexExtractsOSOverrides(t *testing.T) {
	doc, err := ReadIndex(strings.NewReader(`
TOOL_IID:
  name: My Tool
  install_sources:
    - !dir common-bin
  Mac:
    install_sources:
      - !dir mac-bin
  Win:
    install_sources:
      - !dir win-bin
`))
	require.NoError(t, err)
	it := doc["TOOL_IID"]
	require.Len(t, it.InstallSources, 1)
	assert.Equal(t, "common-bin", it.InstallSources[0].Path)

	require.Contains(t, it.OSOverrides, "Mac")
	assert.Equal(t, "mac-bin", it.OSOverrides["Mac"].InstallSources[0].Path)
	require.Contains(t, it.OSOverrides, "Win")
	assert.Equal(t, "win-bin", it.OSOverrides["Win"].InstallSources[0].Path)
}

func TestReadIndexIgnoresUnknownSiblingKeysAsOverrides(t *testing.T) {
	doc, err := ReadIndex(strings.NewReader(`
TOOL_IID:
  name: My Tool
  remark: just a remark, not an OS override
`))
	require.NoError(t, err)
	it := doc["TOOL_IID"]
	assert.Equal(t, "just a remark, not an OS override", it.Remark)
	assert.Empty(t, it.OSOverrides)
}

func TestReadRequireParsesMappingShapeWithGuidVersionAndRequireBy(t *testing.T) {
	doc, err := ReadRequire(strings.NewReader(`
TOOL_IID:
  guid: [1234-ABCD]
  version: "1.0.0"
  require_by: [OTHER_IID, GHOST_IID]
`))
	require.NoError(t, err)
	require.Contains(t, doc, "TOOL_IID")
	it := doc["TOOL_IID"]
	assert.Equal(t, []string{"1234-ABCD"}, it.GUIDs)
	assert.Equal(t, "1.0.0", it.Version)
	assert.Equal(t, []string{"OTHER_IID", "GHOST_IID"}, it.RequireBy)
}

func TestReadRequireParsesBareSequenceAsRequireBy(t *testing.T) {
	doc, err := ReadRequire(strings.NewReader(`
TOOL_IID:
  - OTHER_IID
  - GHOST_IID
`))
	require.NoError(t, err)
	it := doc["TOOL_IID"]
	assert.Equal(t, []string{"OTHER_IID", "GHOST_IID"}, it.RequireBy)
	assert.Empty(t, it.GUIDs)
	assert.Empty(t, it.Version)
}

func TestReadIndexRejectsMalformedYAML(t *testing.T) {
	_, err := ReadIndex(strings.NewReader("not: valid: yaml: ["))
	assert.Error(t, err)
}
