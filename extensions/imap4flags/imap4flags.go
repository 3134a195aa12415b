// Package imap4flags implements RFC 5232: the "setflag"/"addflag"/
// "removeflag" commands and the "hasflag" test for manipulating and
// inspecting the IMAP flag set carried on "keep"/"fileinto" (spec.md §9).
// The legacy "imapflags" name is registered as a validate-time-conflicting
// alias, per spec.md §9's note on historic dual implementations.
package imap4flags

import (
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
)

const (
	Name      = "imap4flags"
	AliasName = "imapflags"
)

// flagsTag is the same ":flags" shape fileinto declares for itself;
// imap4flags attaches it to "keep", the one core command RFC 5232 augments
// that doesn't already carry the tag.
var flagsTag = registry.TagShape{Name: "flags", TakesParam: true}

// splitVariableAndFlags resolves setflag/addflag/removeflag's optional
// leading variable-name argument: one positional argument is the flag
// list alone (the ambient "" variable); two are variable name then flag
// list.
func splitVariableAndFlags(api registry.ValidateAPI, cmd ast.NodeID) (variable string, flagsArg ast.NodeID, ok bool) {
	args := api.PositionalArgs(cmd)
	switch len(args) {
	case 1:
		return "", args[0], true
	case 2:
		vals := api.Arena().StringListValues(args[0])
		if len(vals) != 1 {
			return "", 0, false
		}
		return vals[0], args[1], true
	default:
		return "", 0, false
	}
}

func validateFlagCommand(name string) func(registry.ValidateAPI, ast.NodeID) {
	return func(api registry.ValidateAPI, cmd ast.NodeID) {
		if _, _, ok := splitVariableAndFlags(api, cmd); !ok {
			api.Errorf(api.Arena().Node(cmd).Line(), "%q expects an optional variable name followed by a flag list", name)
		}
	}
}

func generateFlagCommand(api registry.GenAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	variable := ""
	flagsArg := args[0]
	if len(args) == 2 {
		vals := api.Arena().StringListValues(args[0])
		if len(vals) == 1 {
			variable = vals[0]
		}
		flagsArg = args[1]
	}
	api.EmitString(variable)
	api.EmitStringList(api.Arena().StringListValues(flagsArg))
}

func executeFlagCommand(mode registry.FlagMode) func(registry.ExecAPI) error {
	return func(api registry.ExecAPI) error {
		variable, err := api.ReadString()
		if err != nil {
			return err
		}
		flags, err := api.ReadStringList()
		if err != nil {
			return err
		}
		expanded := make([]string, len(flags))
		for i, f := range flags {
			expanded[i] = api.ExpandVariables(f)
		}
		api.SetFlags(variable, expanded, mode)
		return nil
	}
}

// validateHasflag accepts one argument (the flag list, testing the
// ambient "" variable) or two (a variable-name list, then the flag list).
// hasflag's comparison is always exact-match (RFC 5232 §5's examples
// compare against literal IMAP keywords/flags; ExecAPI exposes no
// comparator registry lookup for an extension test to do otherwise).
func validateHasflag(api registry.ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 1 && len(args) != 2 {
		api.Errorf(api.Arena().Node(test).Line(), "\"hasflag\" expects an optional variable-name list followed by a flag list")
	}
}

func generateHasflag(api registry.GenAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	var variables []string
	flagsArg := args[0]
	if len(args) == 2 {
		variables = api.Arena().StringListValues(args[0])
		flagsArg = args[1]
	}
	api.EmitStringList(variables)
	api.EmitStringList(api.Arena().StringListValues(flagsArg))
}

func executeHasflag(api registry.ExecAPI) (bool, error) {
	variables, err := api.ReadStringList()
	if err != nil {
		return false, err
	}
	keys, err := api.ReadStringList()
	if err != nil {
		return false, err
	}
	if len(variables) == 0 {
		variables = []string{""}
	}

	var current []string
	for _, v := range variables {
		current = append(current, api.Flags(v)...)
	}

	matched := false
	for _, key := range keys {
		for _, have := range current {
			if have == key {
				matched = true
			}
		}
	}
	return matched, nil
}

// Load installs setflag/addflag/removeflag, hasflag, and the ":flags" tag
// on "keep". It must run after fileinto's Load when both extensions are
// required (fileinto declares its own ":flags" tag directly, so ordering
// between the two only matters for "keep").
func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "setflag",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Validate:    validateFlagCommand("setflag"),
		Generate:    generateFlagCommand,
		Execute:     executeFlagCommand(registry.FlagSet),
	})
	r.AddCommand(&registry.CommandDef{
		Name:        "addflag",
		ExtensionID: Extension.ID,
		SubCode:     2,
		Validate:    validateFlagCommand("addflag"),
		Generate:    generateFlagCommand,
		Execute:     executeFlagCommand(registry.FlagAdd),
	})
	r.AddCommand(&registry.CommandDef{
		Name:        "removeflag",
		ExtensionID: Extension.ID,
		SubCode:     3,
		Validate:    validateFlagCommand("removeflag"),
		Generate:    generateFlagCommand,
		Execute:     executeFlagCommand(registry.FlagRemove),
	})
	r.AddTest(&registry.TestDef{
		Name:        "hasflag",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Validate:    validateHasflag,
		Generate:    generateHasflag,
		Execute:     executeHasflag,
	})
	if err := r.AddCommandTag("keep", flagsTag); err != nil {
		return err
	}
	return nil
}

// Extension is the canonical "imap4flags" registration.
var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}

// LoadAlias makes "imapflags" resolvable by "require" without installing a
// second copy of the commands/tag Load already attached.
func LoadAlias(r *registry.Registry) error {
	r.AddAliasPair(Name, AliasName)
	return nil
}

// AliasExtension is the deprecated "imapflags" name (spec.md §9): a host
// registers it alongside Extension so either name satisfies "require", but
// requiring both is a validate error.
var AliasExtension = &registry.Extension{Name: AliasName, Version: "1.0", Load: LoadAlias}
