package indexstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instl-run/instl/pkg/indexio"
)

const sampleIndex = `
BASE_ITEM:
  name: Base Tool
  guid: AAAA-1111
  install_sources:
    - !dir bin
  install_folders:
    - /Apps/BaseTool
CHILD_ITEM:
  name: Child Tool
  inherit: [BASE_ITEM]
  depends: [BASE_ITEM]
ICON_ONLY:
  name: Icon
  install_sources:
    - !file icon.png
`

func loadSample(t *testing.T) *Store {
	t.Helper()
	doc, err := indexio.ReadIndex(strings.NewReader(sampleIndex))
	require.NoError(t, err)
	s := New()
	require.NoError(t, s.ReadIndex(doc))
	return s
}

func TestReadIndexAndActivate(t *testing.T) {
	s := loadSample(t)
	s.ActivateAll()

	base, ok := s.Get("BASE_ITEM")
	require.True(t, ok)
	assert.Equal(t, "Base Tool", base.Name)
	sources := base.detailsNamed("install_sources")
	require.Len(t, sources, 1)
	assert.True(t, sources[0].OSIsActive)
}

func TestResolveInheritanceCopiesParentDetails(t *testing.T) {
	s := loadSample(t)
	s.ActivateAll()
	require.NoError(t, s.ResolveInheritance())

	child, ok := s.Get("CHILD_ITEM")
	require.True(t, ok)
	folders := child.detailsNamed("install_folders")
	require.Len(t, folders, 1)
	assert.Equal(t, "/Apps/BaseTool", folders[0].Value)
	assert.Equal(t, 1, folders[0].Generation)
	assert.Equal(t, "CHILD_ITEM", folders[0].OwnerIID)
	assert.Equal(t, "BASE_ITEM", folders[0].OriginalIID)
}

func TestResolveInheritanceDetectsCycle(t *testing.T) {
	doc, err := indexio.ReadIndex(strings.NewReader(`
A:
  inherit: [B]
B:
  inherit: [A]
`))
	require.NoError(t, err)
	s := New()
	require.NoError(t, s.ReadIndex(doc))
	err = s.ResolveInheritance()
	assert.Error(t, err)
}

func TestIidsFromGuids(t *testing.T) {
	s := loadSample(t)
	iids, orphans := s.IidsFromGuids([]string{"AAAA-1111", "ZZZZ-0000"})
	assert.Equal(t, []string{"BASE_ITEM"}, iids)
	assert.Equal(t, []string{"zzzz-0000"}, orphans)
}

func TestStatusTransitionsAndRecursiveDeps(t *testing.T) {
	s := loadSample(t)
	s.ActivateAll()
	require.NoError(t, s.ResolveInheritance())

	s.ChangeStatusIf(StatusNone, StatusMain, []string{"CHILD_ITEM"})
	deps := s.RecursiveDeps(StatusMain)
	assert.ElementsMatch(t, []string{"CHILD_ITEM", "BASE_ITEM"}, deps)

	s.ChangeStatusIf(StatusNone, StatusDepend, []string{"BASE_ITEM"})
	base, _ := s.Get("BASE_ITEM")
	assert.Equal(t, StatusDepend, base.InstallStatus)
}

func TestCreateDefaultItems(t *testing.T) {
	s := loadSample(t)
	s.ActivateAll()
	require.NoError(t, s.ResolveInheritance())
	s.CreateDefaultItems(nil)

	allItems, ok := s.Get(AllItemsIID)
	require.True(t, ok)
	deps := allItems.detailsNamed("depends")
	var targets []string
	for _, d := range deps {
		targets = append(targets, d.Value)
	}
	assert.Contains(t, targets, "BASE_ITEM")
	assert.Contains(t, targets, "CHILD_ITEM")
	assert.Contains(t, targets, "ICON_ONLY")
}

func TestVersionsDifferTreatsEquivalentSemverAsSame(t *testing.T) {
	assert.False(t, versionsDiffer("1.0", "1.0.0"))
	assert.True(t, versionsDiffer("1.0.0", "1.1.0"))
	assert.False(t, versionsDiffer("not-a-version", "not-a-version"))
	assert.True(t, versionsDiffer("not-a-version", "also-not"))
}

func TestReadRequireSplitsRequireByAgainstKnownIIDs(t *testing.T) {
	s := loadSample(t)

	reqDoc, err := indexio.ReadRequire(strings.NewReader(`
BASE_ITEM:
  version: "1.0.0"
  require_by: [CHILD_ITEM, GHOST_IID]
`))
	require.NoError(t, err)
	require.NoError(t, s.ReadRequire(reqDoc))

	base, ok := s.Get("BASE_ITEM")
	require.True(t, ok)
	assert.True(t, base.Installed)
	assert.Equal(t, "1.0.0", base.RequireVersion)

	requireBy, deprecated := s.ReverseDependencies("BASE_ITEM")
	assert.Equal(t, []string{"CHILD_ITEM"}, requireBy)
	assert.Equal(t, []string{"GHOST_IID"}, deprecated)
}

func TestSourceFoldersToItemsWithoutTargetFolders(t *testing.T) {
	s := loadSample(t)
	s.ActivateAll()
	require.NoError(t, s.ResolveInheritance())
	s.ChangeStatusIf(StatusNone, StatusMain, []string{"ICON_ONLY"})

	out := s.SourceFoldersToItemsWithoutTargetFolders()
	require.Contains(t, out, "ICON_ONLY")
	assert.Equal(t, []string{"icon.png"}, out["ICON_ONLY"])
}
