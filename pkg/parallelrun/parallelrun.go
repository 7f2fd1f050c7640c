// Package parallelrun implements the parallel runner (spec §4.H): a flat
// command list split into concurrently-launched partitions by the "wait"
// sentinel, with abort-file watching and signal-triggered tree-kill.
// Grounded on original_source/utils/parallel_run.py.
package parallelrun

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/instl-run/instl/pkg/instllog"
	"github.com/instl-run/instl/pkg/xerrors"
)

// Wait is the barrier sentinel token.
const Wait = "wait"

// AbortPollInterval is how often the abort file is checked, per spec §4.H's
// "1 Hz watcher".
const AbortPollInterval = time.Second

// Runner launches a flat command list, partitioned on Wait, tracking each
// child's process group so the whole subtree can be killed atomically.
type Runner struct {
	Shell     bool
	AbortFile string

	// MaxConcurrent bounds how many commands of a single partition run at
	// once; 0 means unbounded (every command in the partition launches
	// immediately, as spec §4.H describes).
	MaxConcurrent int64

	mu     sync.Mutex
	groups []int
}

// New returns a Runner.
func New(shell bool, abortFile string) *Runner {
	return &Runner{Shell: shell, AbortFile: abortFile}
}

// Partition splits commands into groups, each launched concurrently, split
// wherever the Wait sentinel appears.
func Partition(commands []string) [][]string {
	var out [][]string
	var current []string
	for _, c := range commands {
		if c == Wait {
			out = append(out, current)
			current = nil
			continue
		}
		current = append(current, c)
	}
	out = append(out, current)
	return out
}

// Run executes every partition in order, barrier-joining between them.
// abortFile watching and signal handling run for the duration of the call;
// the first failing partition's error is returned.
func (r *Runner) Run(ctx context.Context, commands []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, terminatingSignals()...)
	defer signal.Stop(sigCh)

	var abortTicker *time.Ticker
	if r.AbortFile != "" {
		abortTicker = time.NewTicker(AbortPollInterval)
		defer abortTicker.Stop()
	}

	done := make(chan error, 1)
	go func() { done <- r.runPartitions(ctx, commands) }()

	for {
		select {
		case err := <-done:
			return err
		case sig := <-sigCh:
			r.killAll()
			return xerrors.Wrapf(xerrors.ErrProcessTerminatedExternally, "signal %v", sig)
		case <-tickerChan(abortTicker):
			if _, statErr := os.Stat(r.AbortFile); statErr != nil {
				r.killAll()
				return xerrors.Wrap(xerrors.ErrProcessTerminatedExternally, "abort file vanished")
			}
		}
	}
}

func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (r *Runner) runPartitions(ctx context.Context, commands []string) error {
	for i, partition := range Partition(commands) {
		if len(partition) == 0 {
			continue
		}
		if err := r.runPartition(ctx, i, partition); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runPartition(ctx context.Context, index int, commands []string) error {
	g, gctx := errgroup.WithContext(ctx)
	var sem *semaphore.Weighted
	if r.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(r.MaxConcurrent)
	}
	for _, cmdline := range commands {
		cmdline := cmdline
		g.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
			}
			return r.runOne(gctx, index, cmdline)
		})
	}
	return g.Wait()
}

func (r *Runner) runOne(ctx context.Context, partition int, cmdline string) error {
	var cmd *exec.Cmd
	if r.Shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", cmdline)
	} else {
		argv, err := shlex.Split(cmdline)
		if err != nil {
			return xerrors.Wrapf(err, "split command %q", cmdline)
		}
		if len(argv) == 0 {
			return xerrors.Wrapf(xerrors.ErrValidation, "empty command in partition %d", partition)
		}
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	}
	configureProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return xerrors.Wrapf(err, "stdout pipe for %q", cmdline)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return xerrors.Wrapf(err, "start %q", cmdline)
	}
	r.trackGroup(cmd)

	entry := instllog.WithStage(fmt.Sprintf("partition-%d", partition))
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		entry.Info(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		return xerrors.Wrapf(err, "command %q failed", cmdline)
	}
	return nil
}

func (r *Runner) trackGroup(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cmd.Process != nil {
		r.groups = append(r.groups, cmd.Process.Pid)
	}
}

func (r *Runner) killAll() {
	r.mu.Lock()
	pids := append([]int(nil), r.groups...)
	r.mu.Unlock()
	for _, pid := range pids {
		killProcessGroup(pid)
	}
}

func terminatingSignals() []os.Signal {
	return []os.Signal{syscall.SIGABRT, syscall.SIGINT, syscall.SIGTERM}
}
