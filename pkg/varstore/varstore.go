// Package varstore implements the scoped, lazily-resolving key to
// list-of-strings variable store described in spec §4.A: $(VAR) expansion,
// freeze-on-first-resolve, scope stacking, and const variables. Grounded on
// original_source/configVar/configVarStack.py's ConfigVarStack.
package varstore

import (
	"regexp"
	"slices"
	"strings"

	"github.com/instl-run/instl/pkg/xerrors"
)

// entry holds one variable's fragments and metadata within a single scope.
type entry struct {
	fragments []string
	desc      string
	isConst   bool
}

// scope is one frame of the variable stack; writes always target the top
// frame, lookups walk the stack top-down.
type scope struct {
	vars map[string]*entry
}

func newScope() *scope { return &scope{vars: make(map[string]*entry)} }

// Store is a VarStore: a stack of scopes plus the freeze-on-first-resolve
// side channel. Not safe for concurrent use, matching spec §5's "planning
// phase is single-threaded" model.
type Store struct {
	stack            []*scope
	normpathSuffixes []string
	freezeEnabled    bool
	frozen           map[string][]string // name -> snapshot taken on first resolve
	pending          map[string][]string // buffered writes to frozen names, applied on Thaw
	resolveCounts    map[string]int
}

var refPattern = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_]*)(?:<([^>]*)>)?\)`)

// New returns a Store with a single, empty top-level scope.
func New() *Store {
	s := &Store{
		frozen:        make(map[string][]string),
		pending:       make(map[string][]string),
		resolveCounts: make(map[string]int),
	}
	s.PushScope()
	return s
}

// SetNormpathSuffixes configures the name suffixes (e.g. "_DIR", "_PATH")
// whose const values are path-normalised before comparison/storage, per
// spec §4.A's add_const behaviour.
func (s *Store) SetNormpathSuffixes(suffixes ...string) {
	s.normpathSuffixes = append([]string(nil), suffixes...)
}

// PushScope opens a new writable frame on top of the stack.
func (s *Store) PushScope() {
	s.stack = append(s.stack, newScope())
}

// PopScope removes the top frame. Calling PopScope on an empty
// stack is a programming error and panics, matching the teacher's assertion
// style for invariants that should never be reachable in practice.
func (s *Store) PopScope() {
	if len(s.stack) == 0 {
		panic("varstore: PopScope called on empty stack")
	}
	s.stack = s.stack[:len(s.stack)-1]
}

// WithScope pushes a new scope, runs fn, and guarantees the scope is popped
// on every exit path (including panics), mirroring the original's
// push_scope_context context manager.
func (s *Store) WithScope(fn func() error) error {
	s.PushScope()
	defer s.PopScope()
	return fn()
}

func (s *Store) top() *scope { return s.stack[len(s.stack)-1] }

func (s *Store) lookup(name string) (*entry, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if e, ok := s.stack[i].vars[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// Set replaces name's fragment list in the top scope, following
// freeze-on-first-resolve buffering when name has already been resolved.
func (s *Store) Set(name string, frags ...string) {
	s.setWithDesc(name, "", frags)
}

// SetWithDescription is Set plus a human-readable description.
func (s *Store) SetWithDescription(name, desc string, frags ...string) {
	s.setWithDesc(name, desc, frags)
}

func (s *Store) setWithDesc(name, desc string, frags []string) {
	if s.freezeEnabled {
		if _, isFrozen := s.frozen[name]; isFrozen {
			s.pending[name] = append([]string(nil), frags...)
			return
		}
	}
	s.top().vars[name] = &entry{fragments: append([]string(nil), frags...), desc: desc}
}

// Append adds fragments to the end of name's list (in the top scope; if name
// only exists in a lower scope, the top scope gets its own copy extended).
func (s *Store) Append(name string, frags ...string) {
	existing, _ := s.Get(name)
	combined := append(append([]string(nil), existing...), frags...)
	s.Set(name, combined...)
}

// SetIfAbsent creates name only when it does not already exist anywhere on
// the stack, used for defaulting values not supplied by the index/require
// input.
func (s *Store) SetIfAbsent(name, desc string, frags ...string) {
	if _, ok := s.Get(name); ok {
		return
	}
	s.setWithDesc(name, desc, frags)
}

// AddConst sets name once; a second call with a different value list fails
// with ErrConstRedefined. Values are path-normalised first when name ends
// with a configured normpath suffix.
func (s *Store) AddConst(name, desc string, values ...string) error {
	normalized := s.normalizeIfNeeded(name, values)
	if existing, ok := s.lookup(name); ok {
		if existing.isConst {
			if !slices.Equal(existing.fragments, normalized) {
				return xerrors.ConstRedefinedError(name, existing.fragments, normalized)
			}
			return nil
		}
	}
	s.top().vars[name] = &entry{fragments: normalized, desc: desc, isConst: true}
	return nil
}

func (s *Store) normalizeIfNeeded(name string, values []string) []string {
	for _, suffix := range s.normpathSuffixes {
		if strings.HasSuffix(name, suffix) {
			out := make([]string, len(values))
			for i, v := range values {
				out[i] = normalizePath(v)
			}
			return out
		}
	}
	return append([]string(nil), values...)
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Get returns name's fragment list and whether it was found, consulting the
// frozen snapshot first.
func (s *Store) Get(name string) ([]string, bool) {
	if frags, ok := s.frozen[name]; ok {
		return frags, true
	}
	e, ok := s.lookup(name)
	if !ok {
		return nil, false
	}
	return e.fragments, true
}

// Bool resolves name and interprets it as a boolean ("yes"/"true"/"1" are
// true; anything else, or a missing/empty variable, is false).
func (s *Store) Bool(name string) bool {
	frags, ok := s.Get(name)
	if !ok || len(frags) == 0 {
		return false
	}
	switch strings.ToLower(frags[0]) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}

// Resolve returns sep.join(Get(name)), snapshotting the value into the
// freeze side-channel on first successful resolution when freezing is
// enabled.
func (s *Store) Resolve(name, sep string) (string, error) {
	frags, ok := s.Get(name)
	if !ok {
		return "", xerrors.KeyError(name)
	}
	s.resolveCounts[name]++
	if s.freezeEnabled {
		if _, already := s.frozen[name]; !already {
			s.frozen[name] = append([]string(nil), frags...)
		}
	}
	if sep == "" {
		sep = " "
	}
	return strings.Join(frags, sep), nil
}

// ResolveStr expands every $(NAME) or $(NAME<sep>) reference in s,
// recursively. A self-referential expansion is reported as ErrResolveCycle.
func (s *Store) ResolveStr(str string) (string, error) {
	return s.resolveStr(str, nil)
}

func (s *Store) resolveStr(str string, chain []string) (string, error) {
	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(str, func(m string) string {
		if resolveErr != nil {
			return m
		}
		groups := refPattern.FindStringSubmatch(m)
		name, sep := groups[1], groups[2]
		if slices.Contains(chain, name) {
			resolveErr = xerrors.ResolveCycleError(append(chain, name))
			return m
		}
		if sep == "" {
			sep = " "
		}
		frags, ok := s.Get(name)
		if !ok {
			// Leave unresolved; caller may later call ReplaceUnresolved.
			return m
		}
		s.resolveCounts[name]++
		joined := strings.Join(frags, sep)
		expanded, err := s.resolveStr(joined, append(chain, name))
		if err != nil {
			resolveErr = err
			return m
		}
		if s.freezeEnabled {
			if _, already := s.frozen[name]; !already {
				s.frozen[name] = append([]string(nil), frags...)
			}
		}
		return expanded
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

// ResolveStrToList expands s and splits the result on whitespace, mirroring
// resolve_str_to_list.
func (s *Store) ResolveStrToList(str string) ([]string, error) {
	resolved, err := s.ResolveStr(str)
	if err != nil {
		return nil, err
	}
	return strings.Fields(resolved), nil
}

// ReplaceUnresolved rewrites any remaining $(NAME) references using the
// OS-native variable pattern, for final shell emission.
func (s *Store) ReplaceUnresolved(str, osGroup string) string {
	return refPattern.ReplaceAllStringFunc(str, func(m string) string {
		groups := refPattern.FindStringSubmatch(m)
		name := groups[1]
		if osGroup == "Win" {
			return "%" + name + "%"
		}
		return "${" + name + "}"
	})
}

// FreezeOnFirstResolve enables the freeze side channel: the next successful
// resolution of any not-yet-resolved variable snapshots its value, and
// subsequent Set/Append calls on that name are buffered until Thaw.
func (s *Store) FreezeOnFirstResolve() {
	s.freezeEnabled = true
}

// Thaw applies every buffered write accumulated since freezing, re-freezing
// each name at its newly applied value, and clears the buffer.
func (s *Store) Thaw() {
	for name, frags := range s.pending {
		s.top().vars[name] = &entry{fragments: frags}
		s.frozen[name] = append([]string(nil), frags...)
	}
	s.pending = make(map[string][]string)
}

// Stats returns, for every variable that has been resolved at least once,
// how many times Resolve/ResolveStr touched it. Supplements
// configVarStack.py's print_statistics for diagnosing freeze-related bugs.
func (s *Store) Stats() map[string]int {
	out := make(map[string]int, len(s.resolveCounts))
	for k, v := range s.resolveCounts {
		out[k] = v
	}
	return out
}

// Keys returns every variable name visible from the current stack, nearest
// scope first, without duplicates.
func (s *Store) Keys() []string {
	seen := make(map[string]struct{})
	var out []string
	for i := len(s.stack) - 1; i >= 0; i-- {
		for name := range s.stack[i].vars {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out
}
