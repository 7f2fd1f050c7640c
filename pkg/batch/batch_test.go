package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionOrderIsFixed(t *testing.T) {
	expected := []string{
		"pre", "assign", "begin", "links", "upload", "sync",
		"post-sync", "copy", "post-copy", "remove", "admin", "end", "post",
	}
	assert.Equal(t, expected, SectionOrder)
}

func TestAddRejectsUnknownSection(t *testing.T) {
	a := New()
	err := a.Add("bogus", &Op{Name: "Noop"})
	assert.Error(t, err)
}

func TestOpenSubAccumulatorBlocksAdd(t *testing.T) {
	a := New()
	require.NoError(t, a.OpenSubAccumulator())
	err := a.Add(SectionCopy, &Op{Name: "CopyFile", Essential: true})
	assert.Error(t, err)

	a.CloseSubAccumulator()
	require.NoError(t, a.Add(SectionCopy, &Op{Name: "CopyFile", Essential: true}))
}

func TestTotalProgressCountSumsTree(t *testing.T) {
	a := New()
	parent := &Op{Name: "CopyDirToDir", Essential: true, IsContextManager: true, OwnProgressCount: 1}
	parent.Children = append(parent.Children, &Op{Name: "CopyFile", Essential: true, CallCall: true, OwnProgressCount: 2})
	require.NoError(t, a.Add(SectionCopy, parent))
	assert.Equal(t, 3, a.TotalProgressCount())
}

func TestRenderElidesNonEssentialSubtrees(t *testing.T) {
	a := New()
	require.NoError(t, a.Add(SectionCopy, &Op{Name: "LogMessage", Essential: false, CallCall: true}))
	require.NoError(t, a.Add(SectionCopy, &Op{Name: "CopyFile", Essential: true, CallCall: true}))

	out := a.Render()
	assert.NotContains(t, out, "log_message")
	assert.Contains(t, out, "copy_file_00001")
}

func TestRenderAssignsStableUniqueNames(t *testing.T) {
	a := New()
	require.NoError(t, a.Add(SectionCopy, &Op{Name: "CopyFile", Essential: true, CallCall: true}))
	require.NoError(t, a.Add(SectionCopy, &Op{Name: "CopyFile", Essential: true, CallCall: true}))

	out := a.Render()
	assert.Contains(t, out, "copy_file_00001")
	assert.Contains(t, out, "copy_file_00002")
}

func TestRenderAbsorbsAnonymousContainerChildren(t *testing.T) {
	a := New()
	container := &Op{Name: "Group", IsAnonymous: true}
	container.Children = append(container.Children, &Op{Name: "CopyFile", Essential: true, CallCall: true})
	require.NoError(t, a.Add(SectionCopy, container))

	out := a.Render()
	assert.NotContains(t, out, "group_00001")
	assert.Contains(t, out, "copy_file_00001")
}
