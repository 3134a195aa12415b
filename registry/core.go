package registry

import "github.com/dovesieve/sieve/ast"

// registerCore installs the RFC 5228 base commands and tests. Their
// Generate/Execute hooks are left nil: codegen and the interpreter dispatch
// core opcodes through a Go switch on name rather than through the
// registry (spec.md §4.7 "core opcodes are hardcoded"). The CommandDef/
// TestDef entries exist so the validator's generic arity/tag checking and
// diag's fuzzy name suggestions work uniformly across core and extension
// names.
func registerCore(r *Registry) {
	r.AddCommand(&CommandDef{Name: "require", Validate: validateRequire})
	r.AddCommand(&CommandDef{Name: "stop", Validate: validateNoArgs})
	r.AddCommand(&CommandDef{Name: "keep", Validate: validateNoArgs})
	r.AddCommand(&CommandDef{Name: "discard", Validate: validateNoArgs})
	r.AddCommand(&CommandDef{Name: "redirect", Validate: validateOneString})
	r.AddCommand(&CommandDef{
		Name: "include",
		Tags: []TagShape{
			{Name: "personal"},
			{Name: "global"},
			{Name: "once"},
			{Name: "optional"},
		},
		Validate: validateInclude,
	})

	r.AddTest(&TestDef{Name: "true", Validate: validateNoTestArgs})
	r.AddTest(&TestDef{Name: "false", Validate: validateNoTestArgs})
	r.AddTest(&TestDef{Name: "not", Validate: validateExactlyOneSubtest})
	r.AddTest(&TestDef{Name: "anyof", Validate: validateAtLeastOneSubtest})
	r.AddTest(&TestDef{Name: "allof", Validate: validateAtLeastOneSubtest})
	r.AddTest(&TestDef{Name: "exists", Validate: validateOneStringListArg})
	r.AddTest(&TestDef{
		Name:         "header",
		MatchContext: true,
		Tags:         matchContextTags(),
		Validate:     validateTwoStringListArgs,
	})
	r.AddTest(&TestDef{
		Name:         "address",
		MatchContext: true,
		AddressPart:  true,
		Tags:         append(matchContextTags(), addressPartTags()...),
		Validate:     validateTwoStringListArgs,
	})
	r.AddTest(&TestDef{
		Name:         "envelope",
		MatchContext: true,
		AddressPart:  true,
		Tags:         append(matchContextTags(), addressPartTags()...),
		Validate:     validateEnvelope,
	})
	r.AddTest(&TestDef{
		Name: "size",
		Tags: []TagShape{
			{Name: "over", TakesParam: true},
			{Name: "under", TakesParam: true},
		},
		Validate: validateSize,
	})
}

// matchContextTags is the comparator/match-type tag set RFC 5228 §2.7.3
// declares for every header/address/envelope/string-family test, returned
// fresh so callers can safely append to it.
func matchContextTags() []TagShape {
	return []TagShape{
		{Name: "comparator", TakesParam: true},
		{Name: "is"},
		{Name: "contains"},
		{Name: "matches"},
	}
}

// addressPartTags is the :localpart/:domain/:all tag set RFC 5228 §2.7.4
// declares for the "address" and "envelope" tests.
func addressPartTags() []TagShape {
	return []TagShape{
		{Name: "localpart"},
		{Name: "domain"},
		{Name: "all"},
	}
}

func validateNoArgs(api ValidateAPI, cmd ast.NodeID) {
	if args := api.PositionalArgs(cmd); len(args) != 0 {
		api.Errorf(api.Arena().Node(cmd).Line(), "command takes no positional arguments")
	}
}

func validateNoTestArgs(api ValidateAPI, test ast.NodeID) {
	if args := api.PositionalArgs(test); len(args) != 0 {
		api.Errorf(api.Arena().Node(test).Line(), "test takes no arguments")
	}
}

func validateOneString(api ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "command expects exactly one string argument, got %d", len(args))
		return
	}
	if _, ok := api.Arena().Node(args[0]).(*ast.StringList); !ok {
		api.Errorf(api.Arena().Node(cmd).Line(), "command argument must be a string")
	}
}

func validateOneStringListArg(api ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(test).Line(), "test expects exactly one string-list argument, got %d", len(args))
	}
}

func validateTwoStringListArgs(api ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 2 {
		api.Errorf(api.Arena().Node(test).Line(), "test expects a header-name list and a key list, got %d arguments", len(args))
		return
	}
	keys := api.Arena().StringListValues(args[1])
	api.ResolveMatchContext(test, keys)
}

// validateEnvelope enforces RFC 5228 §5.4: unlike "header"/"address",
// "envelope" depends on the transport having supplied envelope data at
// all, so it is the one base-grammar test that still needs its own
// "require" (the "envelope" extension's Load contributes no commands or
// tests of its own — the test is core so codegen/interpreter can dispatch
// it without an extension opcode — it exists purely so this check has a
// name to look up).
func validateEnvelope(api ValidateAPI, test ast.NodeID) {
	if !api.RequireExtension("envelope") {
		api.Errorf(api.Arena().Node(test).Line(), "\"envelope\" test used without require [\"envelope\"]")
	}
	validateTwoStringListArgs(api, test)
}

func validateExactlyOneSubtest(api ValidateAPI, test ast.NodeID) {
	n := api.Arena().Node(test)
	t, ok := n.(*ast.Test)
	if !ok || len(t.Subtests) != 1 {
		api.Errorf(n.Line(), "\"not\" takes exactly one test")
	}
}

func validateAtLeastOneSubtest(api ValidateAPI, test ast.NodeID) {
	n := api.Arena().Node(test)
	t, ok := n.(*ast.Test)
	if !ok || len(t.Subtests) == 0 {
		api.Errorf(n.Line(), "test list must not be empty")
	}
}

func validateSize(api ValidateAPI, test ast.NodeID) {
	overPresent, _ := api.Tag(test, "over")
	underPresent, _ := api.Tag(test, "under")
	if overPresent == underPresent {
		api.Errorf(api.Arena().Node(test).Line(), "\"size\" requires exactly one of :over or :under")
	}
}

// validateInclude checks RFC 6609's "include" command: exactly one string
// argument naming the script, and :personal/:global mutually exclusive.
func validateInclude(api ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"include\" expects exactly one script name")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"include\" expects a single string, not a list")
	}
	personal, _ := api.Tag(cmd, "personal")
	global, _ := api.Tag(cmd, "global")
	if personal && global {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"include\" cannot be both :personal and :global")
	}
}

func validateRequire(api ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"require\" expects exactly one string or string list")
		return
	}
	names := api.Arena().StringListValues(args[0])
	for _, name := range names {
		if !api.DeclareRequire(name) {
			api.Errorf(api.Arena().Node(cmd).Line(), "unknown extension %q", name)
		}
	}
}
