// Package registry is the instance-scoped object model of spec.md §5: the
// catalogue of commands, tests, comparators, match-types and address-parts
// a script can use, core plus whatever extensions were registered. It is
// deliberately instance-scoped rather than a package-level singleton (each
// compile/run gets its own Registry), and it never imports validator,
// codegen or interpreter — those depend on registry, through the ValidateAPI,
// GenAPI and ExecAPI interfaces declared here, not the other way around.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/result"
)

// TagShape declares one tagged argument a command or test recognises, used
// by the validator's generic tag-consumption loop (spec.md §4.5) before any
// hook-specific Validate runs.
type TagShape struct {
	Name       string
	TakesParam bool
}

// CommandDef describes one action/control command, core or
// extension-provided.
type CommandDef struct {
	Name          string
	ExtensionID   int // 0 for core
	Tags          []TagShape
	AllowsBlock   bool
	RequiresBlock bool
	SubCode       uint64

	Validate func(api ValidateAPI, cmd ast.NodeID)
	Generate func(api GenAPI, cmd ast.NodeID)
	Execute  func(api ExecAPI) error
}

// TestDef describes one boolean test, core or extension-provided.
type TestDef struct {
	Name        string
	ExtensionID int
	Tags        []TagShape
	// MatchContext marks tests built on the comparator/match-type/
	// (address-part) trio (header, address, envelope, string, ...). The
	// validator does not read it: :comparator/:is/:contains/:matches and
	// :localpart/:domain/:all are recognised only when listed in Tags.
	MatchContext bool
	AddressPart  bool
	SubCode      uint64

	Validate func(api ValidateAPI, test ast.NodeID)
	Generate func(api GenAPI, test ast.NodeID)
	Execute  func(api ExecAPI) (bool, error)
}

// Extension is a named, versioned bundle of commands/tests/comparators/
// match-types/address-parts, registered by calling Load once at
// construction (spec.md §5 "Extension").
type Extension struct {
	Name    string
	Version string
	// ID is assigned by the Registry on RegisterExtension; extension code
	// should leave it zero and read it back afterwards if needed (e.g. to
	// tag its own opcodes or private blocks).
	ID int
	// Load installs the extension's commands, tests, comparators,
	// match-types and address-parts into r.
	Load func(r *Registry) error
	// ActionKinds contributes result.Kind definitions (the action's
	// duplicate-check and two-phase-commit hooks) a run's
	// result.Accumulator should carry when this extension was required.
	// Registered lazily at run start rather than at Load time, since an
	// Accumulator is per-run state, not per-Registry.
	ActionKinds []*result.Kind
}

// Registry is the object model instance for one compile or run.
type Registry struct {
	mu sync.RWMutex

	extensions   map[string]*Extension
	extByID      map[int]*Extension
	nextExtID    int
	required     map[string]bool
	commands     map[string]*CommandDef
	tests        map[string]*TestDef
	comparators  map[string]match.Comparator
	matchTypes   map[string]match.MatchType
	addressParts map[string]match.AddressPart
	aliasPairs   [][2]string
}

// New builds a Registry preloaded with the RFC 5228 core: the keep/discard/
// redirect/stop commands, the address/envelope/header/size/exists/true/
// false/not/anyof/allof tests, and the i;octet and i;ascii-casemap
// comparators with :is/:contains/:matches match-types.
func New() *Registry {
	r := &Registry{
		extensions:   make(map[string]*Extension),
		extByID:      make(map[int]*Extension),
		nextExtID:    1,
		required:     make(map[string]bool),
		commands:     make(map[string]*CommandDef),
		tests:        make(map[string]*TestDef),
		comparators:  make(map[string]match.Comparator),
		matchTypes:   make(map[string]match.MatchType),
		addressParts: make(map[string]match.AddressPart),
	}
	for name, c := range match.CoreComparators() {
		r.comparators[name] = c
	}
	for name, m := range match.CoreMatchTypes() {
		r.matchTypes[name] = m
	}
	for name, a := range match.CoreAddressParts() {
		r.addressParts[name] = a
	}
	registerCore(r)
	return r
}

// RegisterExtension installs ext, assigning it an ID if unset and invoking
// Load. An extension registered twice under the same name is an error.
func (r *Registry) RegisterExtension(ext *Extension) error {
	r.mu.Lock()
	if _, exists := r.extensions[ext.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("registry: extension %q already registered", ext.Name)
	}
	if ext.ID == 0 {
		ext.ID = r.nextExtID
	}
	if ext.ID >= 0x80 {
		r.mu.Unlock()
		return fmt.Errorf("registry: extension id %d exceeds the 7-bit opcode range", ext.ID)
	}
	r.nextExtID = ext.ID + 1
	r.extensions[ext.Name] = ext
	r.extByID[ext.ID] = ext
	r.mu.Unlock()

	if ext.Load != nil {
		if err := ext.Load(r); err != nil {
			return fmt.Errorf("registry: loading extension %q: %w", ext.Name, err)
		}
	}
	return nil
}

// Require marks name as declared via a "require" statement. It returns
// false if name names no registered extension.
func (r *Registry) Require(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.extensions[name]; !ok {
		return false
	}
	r.required[name] = true
	return true
}

// RequireExtension reports whether name was declared via Require.
func (r *Registry) RequireExtension(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.required[name]
}

// AddCommand registers a command definition, core (ExtensionID 0) or
// extension-provided.
func (r *Registry) AddCommand(def *CommandDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[def.Name] = def
}

// AddTest registers a test definition.
func (r *Registry) AddTest(def *TestDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests[def.Name] = def
}

// AddComparator, AddMatchType and AddAddressPart extend the match object
// model (spec.md §4.9), used by extensions like "comparator-i;ascii-numeric"
// or "relational".
func (r *Registry) AddComparator(c match.Comparator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparators[c.Name] = c
}

func (r *Registry) AddMatchType(m match.MatchType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchTypes[m.Name] = m
}

func (r *Registry) AddAddressPart(a match.AddressPart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addressParts[a.Name] = a
}

// AddCommandTag extends an already-registered command's recognised tags,
// used by extensions like imap4flags that attach ":flags" to the core
// "keep" command instead of defining a command of their own.
func (r *Registry) AddCommandTag(command string, tag TagShape) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.commands[command]
	if !ok {
		return fmt.Errorf("registry: unknown command %q", command)
	}
	def.Tags = append(def.Tags, tag)
	return nil
}

// AddTestTag is AddCommandTag's test-side counterpart.
func (r *Registry) AddTestTag(test string, tag TagShape) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.tests[test]
	if !ok {
		return fmt.Errorf("registry: unknown test %q", test)
	}
	def.Tags = append(def.Tags, tag)
	return nil
}

func (r *Registry) Command(name string) (*CommandDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.commands[name]
	return d, ok
}

func (r *Registry) Test(name string) (*TestDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tests[name]
	return d, ok
}

func (r *Registry) Comparator(name string) (match.Comparator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.comparators[name]
	return c, ok
}

func (r *Registry) MatchType(name string) (match.MatchType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matchTypes[name]
	return m, ok
}

func (r *Registry) AddressPart(name string) (match.AddressPart, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addressParts[name]
	return a, ok
}

func (r *Registry) Extension(name string) (*Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extensions[name]
	return e, ok
}

func (r *Registry) ExtensionByID(id int) (*Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extByID[id]
	return e, ok
}

// Extensions returns every registered extension sorted by ID, for
// deterministic extension-table encoding (spec.md §4.6).
func (r *Registry) Extensions() []*Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Extension, 0, len(r.extensions))
	for _, e := range r.extensions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddAliasPair records a and b as a historic-dual-implementation pair
// (spec.md §9: "imap4flags" alongside "imapflags", "enotify" alongside
// "notify"): both must be registered extensions, but a script requiring
// both at once is a validate error, checked by the validator package once
// the whole script's "require" statements have been processed.
func (r *Registry) AddAliasPair(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliasPairs = append(r.aliasPairs, [2]string{a, b})
}

// AliasPairs returns every pair registered via AddAliasPair.
func (r *Registry) AliasPairs() [][2]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][2]string, len(r.aliasPairs))
	copy(out, r.aliasPairs)
	return out
}

// CommandNames and TestNames list every known name, used for diag's
// fuzzy "did you mean" suggestions on an unknown command/test.
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) TestNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tests))
	for name := range r.tests {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
