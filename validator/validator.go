// Package validator implements spec.md §4.5: a single walk over the parsed
// AST that resolves every command/test identifier against a registry.Registry,
// runs its generic tagged-argument consumption pass followed by a
// hook-specific Validate, enforces placement rules (require at top,
// elsif/else following if/elsif, return only within an included script),
// and recurses into test trees. Errors are additive; Validate never stops
// at the first one.
package validator

import (
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/registry"
)

// Validator holds the state of one validation pass: the AST it is walking,
// the registry it resolves names against, the diagnostic sink it reports
// to, and the per-node tag-consumption results args.go's consumeArgs fills
// in as commands and tests are visited.
type Validator struct {
	tree *ast.AST
	reg  *registry.Registry
	sink *diag.Sink
	args map[ast.NodeID]*argInfo

	// included marks a script parsed as the target of an "include"
	// command; "return" is only valid there (spec.md §4.5).
	included bool
}

// Option configures a Validator constructed with New.
type Option func(*Validator)

// WithIncluded marks the script under validation as an include target,
// permitting a top-level or nested "return" command.
func WithIncluded(v bool) Option {
	return func(val *Validator) { val.included = v }
}

// New builds a Validator for tree, resolving names against reg and
// reporting diagnostics to sink.
func New(tree *ast.AST, reg *registry.Registry, sink *diag.Sink, opts ...Option) *Validator {
	v := &Validator{
		tree: tree,
		reg:  reg,
		sink: sink,
		args: make(map[ast.NodeID]*argInfo),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate walks the whole script once, reporting every diagnostic it
// finds, and returns true iff no errors were reported.
func (v *Validator) Validate() bool {
	v.validateBlock(v.tree.Root, true)
	v.checkAliasConflicts()
	return v.sink.OK()
}

// checkAliasConflicts enforces spec.md §9's rule on the historic
// dual-implementation pairs (imap4flags/imapflags, enotify/notify):
// requiring both names of the same pair in one script is an error.
func (v *Validator) checkAliasConflicts() {
	for _, pair := range v.reg.AliasPairs() {
		if v.reg.RequireExtension(pair[0]) && v.reg.RequireExtension(pair[1]) {
			v.sink.Errorf(0, "cannot require both %q and %q in the same script", pair[0], pair[1])
		}
	}
}

// validateBlock walks a command sequence (the top level or a "{ ... }"
// body), enforcing the placement rules that depend on a command's
// position relative to its siblings rather than on the command itself.
func (v *Validator) validateBlock(commands []ast.NodeID, topLevel bool) {
	requireAllowed := true
	prevName := ""
	for _, id := range commands {
		cmd, ok := v.tree.Arena.Node(id).(*ast.Command)
		if !ok {
			continue
		}

		switch cmd.Name {
		case "require":
			if !topLevel {
				v.sink.Errorf(cmd.Line(), "\"require\" is only allowed at the top level")
			} else if !requireAllowed {
				v.sink.Errorf(cmd.Line(), "\"require\" must appear before any other command")
			}
		case "elsif", "else":
			if prevName != "if" && prevName != "elsif" {
				v.sink.Errorf(cmd.Line(), "%q must immediately follow an \"if\" or \"elsif\"", cmd.Name)
			}
			requireAllowed = false
		case "return":
			if !v.included {
				v.sink.Errorf(cmd.Line(), "\"return\" is only valid within an included script")
			}
			requireAllowed = false
		default:
			requireAllowed = false
		}

		v.validateCommand(id, cmd)
		prevName = cmd.Name
	}
}

// validateIfArm validates the controlling test and nested block of an
// "if"/"elsif" command.
func (v *Validator) validateIfArm(cmd *ast.Command) {
	if len(cmd.Tests) != 1 {
		v.sink.Errorf(cmd.Line(), "%q is missing its test", cmd.Name)
		return
	}
	v.validateTest(cmd.Tests[0])
	v.validateBlock(cmd.Block, false)
}

// validateCommand resolves one command against the registry and runs its
// generic and hook-specific validation.
func (v *Validator) validateCommand(id ast.NodeID, cmd *ast.Command) {
	switch cmd.Name {
	case "if", "elsif":
		v.validateIfArm(cmd)
		return
	case "else":
		v.validateBlock(cmd.Block, false)
		return
	case "return":
		if args := cmd.Args; len(args) != 0 {
			v.sink.Errorf(cmd.Line(), "\"return\" takes no arguments")
		}
		return
	}

	def, ok := v.reg.Command(cmd.Name)
	if !ok {
		v.sink.Errorf(cmd.Line(), "%s", diag.UnknownIdentifier("command", cmd.Name, v.reg.CommandNames()))
		return
	}

	if def.ExtensionID != 0 {
		if ext, ok := v.reg.ExtensionByID(def.ExtensionID); ok {
			required := v.reg.RequireExtension(ext.Name)
			for _, pair := range v.reg.AliasPairs() {
				if pair[0] == ext.Name && v.reg.RequireExtension(pair[1]) {
					required = true
				}
			}
			if !required {
				v.sink.Errorf(cmd.Line(), "%q used without require %q", cmd.Name, ext.Name)
				return
			}
		}
	}

	v.consumeArgs(id, cmd.Args, def.Tags)

	if def.RequiresBlock && cmd.Block == nil {
		v.sink.Errorf(cmd.Line(), "%q requires a block", cmd.Name)
	}
	if !def.AllowsBlock && !def.RequiresBlock && cmd.Block != nil {
		v.sink.Errorf(cmd.Line(), "%q does not take a block", cmd.Name)
	}

	if def.Validate != nil {
		def.Validate(v, id)
	}

	if cmd.Block != nil {
		v.validateBlock(cmd.Block, false)
	}
}

// validateTest resolves one test against the registry, consumes its tagged
// arguments, runs its hook-specific validation, and recurses into any
// subtests (not/anyof/allof).
func (v *Validator) validateTest(id ast.NodeID) {
	test, ok := v.tree.Arena.Node(id).(*ast.Test)
	if !ok {
		return
	}

	def, ok := v.reg.Test(test.Name)
	if !ok {
		v.sink.Errorf(test.Line(), "%s", diag.UnknownIdentifier("test", test.Name, v.reg.TestNames()))
		for _, sub := range test.Subtests {
			v.validateTest(sub)
		}
		return
	}

	info := v.consumeArgs(id, test.Args, def.Tags)
	info.addressPartEligible = def.AddressPart

	if def.Validate != nil {
		def.Validate(v, id)
	}

	for _, sub := range test.Subtests {
		v.validateTest(sub)
	}
}

// ValidateAPI implementation: the methods args.go doesn't already cover.

func (v *Validator) Arena() *ast.Arena { return v.tree.Arena }

func (v *Validator) Errorf(line int, format string, args ...any) {
	v.sink.Errorf(line, format, args...)
}

func (v *Validator) RequireExtension(name string) bool {
	return v.reg.RequireExtension(name)
}

func (v *Validator) DeclareRequire(name string) bool {
	return v.reg.Require(name)
}

// MatchContext retrieves a previously resolved match.Context for test, for
// callers outside the registry.ValidateAPI surface (codegen reads it via
// registry.GenAPI.MatchContext instead; this is a convenience for tests and
// for Validate hooks that run after ResolveMatchContext on the same node).
func (v *Validator) MatchContext(test ast.NodeID) (match.Context, bool) {
	val, ok := v.tree.Arena.Annotation(test, registry.AnnMatchContext)
	if !ok {
		return match.Context{}, false
	}
	return val.(match.Context), true
}

// AddressPart retrieves a previously resolved match.AddressPart for test.
func (v *Validator) AddressPart(test ast.NodeID) (match.AddressPart, bool) {
	val, ok := v.tree.Arena.Annotation(test, registry.AnnAddressPart)
	if !ok {
		return match.AddressPart{}, false
	}
	return val.(match.AddressPart), true
}
