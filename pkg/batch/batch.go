// Package batch implements the batch accumulator (spec §4.F): a
// section-ordered tree of operations rendered into a deterministic script,
// grounded on original_source/pybatch/batchCommandAccum.py.
package batch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/instl-run/instl/pkg/xerrors"
)

// Section names, in the fixed rendering order.
const (
	SectionPre       = "pre"
	SectionAssign    = "assign"
	SectionBegin     = "begin"
	SectionLinks     = "links"
	SectionUpload    = "upload"
	SectionSync      = "sync"
	SectionPostSync  = "post-sync"
	SectionCopy      = "copy"
	SectionPostCopy  = "post-copy"
	SectionRemove    = "remove"
	SectionAdmin     = "admin"
	SectionEnd       = "end"
	SectionPost      = "post"
)

// SectionOrder is the fixed rendering order of every section.
var SectionOrder = []string{
	SectionPre, SectionAssign, SectionBegin, SectionLinks, SectionUpload,
	SectionSync, SectionPostSync, SectionCopy, SectionPostCopy, SectionRemove,
	SectionAdmin, SectionEnd, SectionPost,
}

var validSections = func() map[string]bool {
	m := make(map[string]bool, len(SectionOrder))
	for _, s := range SectionOrder {
		m[s] = true
	}
	return m
}()

// Op is one node of the operation tree.
type Op struct {
	Name             string
	Args             []string
	Essential        bool
	CallCall         bool
	IsContextManager bool
	IsAnonymous      bool
	OwnProgressCount int
	Children         []*Op

	uniqueName string
}

// Accumulator is an ordered map of sections to ordered top-level operation
// lists. Tree construction (adding children) happens by calling AddChild
// with a parent obtained from a prior Add call.
type Accumulator struct {
	sections map[string][]*Op
	subOpen  bool
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{sections: make(map[string][]*Op)}
}

// Add appends op as a new top-level operation of section.
func (a *Accumulator) Add(section string, op *Op) error {
	if !validSections[section] {
		return xerrors.Wrapf(xerrors.ErrUnknownSection, "%s", section)
	}
	if a.subOpen {
		return xerrors.ErrWriterBusy
	}
	a.sections[section] = append(a.sections[section], op)
	return nil
}

// AddChild appends child to parent's child list. parent must already have
// been added to the accumulator (directly or transitively).
func (a *Accumulator) AddChild(parent, child *Op) error {
	if a.subOpen {
		return xerrors.ErrWriterBusy
	}
	parent.Children = append(parent.Children, child)
	return nil
}

// OpenSubAccumulator locks a against further top-level Add calls until
// CloseSubAccumulator is called, modelling the single-writer invariant
// while a nested builder constructs a subtree.
func (a *Accumulator) OpenSubAccumulator() error {
	if a.subOpen {
		return xerrors.ErrWriterBusy
	}
	a.subOpen = true
	return nil
}

// CloseSubAccumulator releases the lock taken by OpenSubAccumulator.
func (a *Accumulator) CloseSubAccumulator() {
	a.subOpen = false
}

// OpsIn returns the top-level operations of section, in insertion order.
func (a *Accumulator) OpsIn(section string) []*Op {
	return a.sections[section]
}

// TotalProgressCount sums OwnProgressCount over every operation in every
// section, used to report "Progress r of t" during execution.
func (a *Accumulator) TotalProgressCount() int {
	total := 0
	for _, section := range SectionOrder {
		for _, op := range a.sections[section] {
			total += sumProgress(op)
		}
	}
	return total
}

func sumProgress(op *Op) int {
	total := op.OwnProgressCount
	for _, c := range op.Children {
		total += sumProgress(c)
	}
	return total
}

// hasEssentialDescendant reports whether op or any descendant is essential.
func hasEssentialDescendant(op *Op) bool {
	if op.Essential {
		return true
	}
	for _, c := range op.Children {
		if hasEssentialDescendant(c) {
			return true
		}
	}
	return false
}

var pascalBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// snakeCase converts PascalCase to snake_case, e.g. "CopyDirToDir" ->
// "copy_dir_to_dir".
func snakeCase(name string) string {
	return strings.ToLower(pascalBoundary.ReplaceAllString(name, "${1}_${2}"))
}

// Render walks the tree in section order and produces a deterministic
// textual rendering, eliding non-essential subtrees with no essential
// descendant, and assigning each remaining op a stable unique name.
func (a *Accumulator) Render() string {
	counters := make(map[string]int)
	var sb strings.Builder
	for _, section := range SectionOrder {
		ops := a.sections[section]
		if len(ops) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "# section: %s\n", section)
		for _, op := range ops {
			renderOp(&sb, op, 0, counters)
		}
	}
	return sb.String()
}

func renderOp(sb *strings.Builder, op *Op, depth int, counters map[string]int) {
	if !hasEssentialDescendant(op) && !op.Essential {
		return
	}
	if op.IsAnonymous {
		for _, c := range op.Children {
			renderOp(sb, c, depth, counters)
		}
		return
	}

	indent := strings.Repeat("  ", depth)
	counters[op.Name]++
	op.uniqueName = fmt.Sprintf("%s_%05d", snakeCase(op.Name), counters[op.Name])

	if op.IsContextManager {
		fmt.Fprintf(sb, "%swith %s(%s) as %s:\n", indent, op.Name, strings.Join(op.Args, ", "), op.uniqueName)
		for _, c := range op.Children {
			renderOp(sb, c, depth+1, counters)
		}
		return
	}
	if op.CallCall {
		fmt.Fprintf(sb, "%s%s(%s)  # %s\n", indent, op.Name, strings.Join(op.Args, ", "), op.uniqueName)
	}
	for _, c := range op.Children {
		renderOp(sb, c, depth, counters)
	}
}
