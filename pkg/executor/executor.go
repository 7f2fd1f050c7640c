// Package executor runs a batch's operation tree as the state machine
// described in spec §4.G: enter, call, exit, with guaranteed exit_self and
// a structured error_dict on failure. Grounded on
// original_source/pybatch/baseClasses.py's PythonBatchCommandBase.
package executor

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/instl-run/instl/pkg/instllog"
	"github.com/instl-run/instl/pkg/varstore"
)

// Step is one runnable node of the executor's operation tree. A nil
// CallSelf is valid for a pure context-manager step that only brackets its
// children.
type Step struct {
	Name                string
	Essential           bool
	CallCall            bool
	IsContextManager    bool
	OwnProgressCount    int
	IgnoreAllErrors     bool
	ExceptionsToIgnore  []error
	EnterSelf           func(*Context) error
	CallSelf            func(*Context) error
	ExitSelf            func(*Context) error
	Children            []*Step
}

// Context carries the mutable state shared across a single execution run:
// the variable store's top scope, the stage stack, and progress counters.
type Context struct {
	Vars            *varstore.Store
	Doing           string
	MajorStage      string
	TotalProgress   int
	runningProgress int
	stageStack      []string
}

// NewContext returns a Context with the given total progress count
// (typically batch.Accumulator.TotalProgressCount()).
func NewContext(vars *varstore.Store, totalProgress int) *Context {
	return &Context{Vars: vars, TotalProgress: totalProgress}
}

// ErrorDict is the structured failure context described in spec §4.G,
// attached to the error returned by Run.
type ErrorDict struct {
	Doing            string
	MajorStage       string
	Stage            []string
	Repr             string
	RunningProgress  int
	TotalProgress    int
	Cwd              string
	Time             time.Time
	ExceptionType    string
	ExceptionMessage string
}

func (e *ErrorDict) Error() string {
	return fmt.Sprintf("%s: doing=%q stage=%v progress=%d/%d: %s",
		e.ExceptionType, e.Doing, e.Stage, e.RunningProgress, e.TotalProgress, e.ExceptionMessage)
}

// RaisingStep identifies, on a failed Run, which step's exception was never
// suppressed — the step attached via raising_obj in the original design.
type RaisingStep struct {
	Step *Step
	Err  error
}

func (r *RaisingStep) Error() string { return r.Err.Error() }
func (r *RaisingStep) Unwrap() error { return r.Err }

// Run executes root and its children depth-first, honouring each step's
// ignore policy. The first unsuppressed error is returned wrapped in an
// ErrorDict built from the stage at which it occurred.
func Run(ctx *Context, root *Step) error {
	return run(ctx, root)
}

func run(ctx *Context, step *Step) (err error) {
	ctx.stageStack = append(ctx.stageStack, step.Name)
	// exit pops the stage on success or suppressed failure and leaves the
	// stack intact on a re-raised error so an outer caller can still read
	// the full stage path from ErrorDict.

	if err := enter(ctx, step); err != nil {
		return exit(ctx, step, err)
	}

	var callErr error
	if step.CallSelf != nil {
		callErr = step.CallSelf(ctx)
	}
	for _, child := range step.Children {
		if callErr != nil {
			break
		}
		callErr = run(ctx, child)
	}

	return exit(ctx, step, callErr)
}

func enter(ctx *Context, step *Step) error {
	ctx.runningProgress += step.OwnProgressCount
	instllog.WithStage(step.Name).Infof("Progress %d of %d", ctx.runningProgress, ctx.TotalProgress)
	if step.EnterSelf != nil {
		return step.EnterSelf(ctx)
	}
	return nil
}

func exit(ctx *Context, step *Step, callErr error) error {
	if step.ExitSelf != nil {
		if exitErr := step.ExitSelf(ctx); exitErr != nil && callErr == nil {
			callErr = exitErr
		}
	}
	if callErr == nil {
		ctx.stageStack = popIfPresent(ctx.stageStack, step.Name)
		return nil
	}
	if step.IgnoreAllErrors {
		ctx.stageStack = popIfPresent(ctx.stageStack, step.Name)
		return nil
	}
	for _, ignorable := range step.ExceptionsToIgnore {
		if errors.Is(callErr, ignorable) {
			instllog.WithStage(step.Name).Warnf("ignoring: %v", callErr)
			ctx.stageStack = popIfPresent(ctx.stageStack, step.Name)
			return nil
		}
	}

	var raising *RaisingStep
	if !errors.As(callErr, &raising) {
		callErr = &RaisingStep{Step: step, Err: callErr}
	}
	cwd, _ := os.Getwd()
	dict := &ErrorDict{
		Doing:            ctx.Doing,
		MajorStage:       ctx.MajorStage,
		Stage:            append([]string(nil), ctx.stageStack...),
		Repr:             step.Name,
		RunningProgress:  ctx.runningProgress,
		TotalProgress:    ctx.TotalProgress,
		Cwd:              cwd,
		Time:             time.Now(),
		ExceptionType:    fmt.Sprintf("%T", callErr),
		ExceptionMessage: callErr.Error(),
	}
	return fmt.Errorf("%w", wrapWithDict(callErr, dict))
}

func popIfPresent(stack []string, name string) []string {
	if len(stack) > 0 && stack[len(stack)-1] == name {
		return stack[:len(stack)-1]
	}
	return stack
}

type dictErr struct {
	err  error
	dict *ErrorDict
}

func (d *dictErr) Error() string { return d.dict.Error() }
func (d *dictErr) Unwrap() error { return d.err }

func wrapWithDict(err error, dict *ErrorDict) error {
	return &dictErr{err: err, dict: dict}
}

// ErrorDictOf extracts the ErrorDict attached to err, if any.
func ErrorDictOf(err error) (*ErrorDict, bool) {
	var d *dictErr
	if errors.As(err, &d) {
		return d.dict, true
	}
	return nil, false
}
