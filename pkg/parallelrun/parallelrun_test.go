package parallelrun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionSplitsOnWaitSentinel(t *testing.T) {
	got := Partition([]string{"a", "b", Wait, "c", Wait, "d", "e"})
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}, {"d", "e"}}, got)
}

func TestPartitionWithNoWait(t *testing.T) {
	got := Partition([]string{"a", "b"})
	assert.Equal(t, [][]string{{"a", "b"}}, got)
}

func TestRunExecutesShellCommandsConcurrently(t *testing.T) {
	r := New(true, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.Run(ctx, []string{"true", "true", Wait, "true"})
	require.NoError(t, err)
}

func TestRunHonoursMaxConcurrent(t *testing.T) {
	r := New(true, "")
	r.MaxConcurrent = 1
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, []string{"sleep 0.2", "sleep 0.2"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 350*time.Millisecond, "serialised by MaxConcurrent=1, should take ~2x single sleep")
}

func TestRunReturnsErrorOnFailingCommand(t *testing.T) {
	r := New(true, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.Run(ctx, []string{"false"})
	assert.Error(t, err)
}

func TestRunNonShellModeSplitsCommandIntoArgv(t *testing.T) {
	r := New(false, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.Run(ctx, []string{"/bin/echo --flag hello"})
	require.NoError(t, err)
}

func TestRunNonShellModeRejectsEmptyCommand(t *testing.T) {
	r := New(false, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.Run(ctx, []string{"   "})
	assert.Error(t, err)
}
