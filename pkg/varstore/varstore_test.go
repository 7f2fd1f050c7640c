package varstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetAppend(t *testing.T) {
	s := New()
	s.Set("NAME", "foo")
	v, ok := s.Get("NAME")
	require.True(t, ok)
	assert.Equal(t, []string{"foo"}, v)

	s.Append("NAME", "bar")
	v, ok = s.Get("NAME")
	require.True(t, ok)
	assert.Equal(t, []string{"foo", "bar"}, v)
}

func TestScopeShadowing(t *testing.T) {
	s := New()
	s.Set("TARGET_DIR", "/base")
	err := s.WithScope(func() error {
		s.Set("TARGET_DIR", "/override")
		v, _ := s.Get("TARGET_DIR")
		assert.Equal(t, []string{"/override"}, v)
		return nil
	})
	require.NoError(t, err)

	v, _ := s.Get("TARGET_DIR")
	assert.Equal(t, []string{"/base"}, v)
}

func TestResolveStrExpandsReferences(t *testing.T) {
	s := New()
	s.Set("A", "hello")
	s.Set("B", "world")
	out, err := s.ResolveStr("$(A) $(B)")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestResolveStrWithSeparator(t *testing.T) {
	s := New()
	s.Set("LIST", "a", "b", "c")
	out, err := s.ResolveStr("$(LIST<,>)")
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", out)
}

func TestResolveStrDetectsCycle(t *testing.T) {
	s := New()
	s.Set("A", "$(A)")
	_, err := s.ResolveStr("$(A)")
	assert.Error(t, err)
}

func TestResolveStrLeavesUnknownUnresolved(t *testing.T) {
	s := New()
	out, err := s.ResolveStr("$(UNKNOWN)")
	require.NoError(t, err)
	assert.Equal(t, "$(UNKNOWN)", out)
}

func TestReplaceUnresolved(t *testing.T) {
	s := New()
	assert.Equal(t, "%FOO%", s.ReplaceUnresolved("$(FOO)", "Win"))
	assert.Equal(t, "${FOO}", s.ReplaceUnresolved("$(FOO)", "Mac"))
}

func TestAddConstRejectsRedefinition(t *testing.T) {
	s := New()
	require.NoError(t, s.AddConst("VERSION", "", "1.0.0"))
	require.NoError(t, s.AddConst("VERSION", "", "1.0.0")) // same value, ok
	err := s.AddConst("VERSION", "", "2.0.0")
	assert.Error(t, err)
}

func TestAddConstNormalizesPathSuffix(t *testing.T) {
	s := New()
	s.SetNormpathSuffixes("_DIR")
	require.NoError(t, s.AddConst("TARGET_DIR", "", "C:\\foo\\\\bar\\"))
	v, _ := s.Get("TARGET_DIR")
	assert.Equal(t, []string{"C:/foo/bar"}, v)
}

func TestFreezeOnFirstResolveBuffersWrites(t *testing.T) {
	s := New()
	s.Set("NAME", "v1")
	s.FreezeOnFirstResolve()

	resolved, err := s.Resolve("NAME", " ")
	require.NoError(t, err)
	assert.Equal(t, "v1", resolved)

	s.Set("NAME", "v2")
	v, _ := s.Get("NAME")
	assert.Equal(t, []string{"v1"}, v, "write after freeze should be buffered, not visible yet")

	s.Thaw()
	v, _ = s.Get("NAME")
	assert.Equal(t, []string{"v2"}, v, "thaw should apply the buffered write")
}

func TestBool(t *testing.T) {
	s := New()
	s.Set("FLAG", "yes")
	assert.True(t, s.Bool("FLAG"))
	s.Set("FLAG", "no")
	assert.False(t, s.Bool("FLAG"))
	assert.False(t, s.Bool("MISSING"))
}

func TestStatsTracksResolveCounts(t *testing.T) {
	s := New()
	s.Set("A", "x")
	_, err := s.Resolve("A", " ")
	require.NoError(t, err)
	_, err = s.Resolve("A", " ")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 2, stats["A"])
}

func TestResolveMissingKeyErrors(t *testing.T) {
	s := New()
	_, err := s.Resolve("MISSING", " ")
	assert.Error(t, err)
}
