// Package variables implements RFC 5229: the "set" command, which binds a
// name to a string value for later "${name}" substitution (spec.md §9
// "State: set"), and the "string" test, which runs the usual comparator/
// match-type machinery against a source string-list instead of a header
// or the body. Substitution itself already lives in the interpreter's
// ExpandVariables (spec.md §4.9's match-value store shares the same
// "${N}"/"${name}" syntax), so this package only has to contribute "set",
// "string", and "set"'s value-transform tags.
package variables

import (
	"strconv"
	"strings"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
)

const Name = "variables"

// modifierTags is RFC 5229 §4's "set" modifiers, all mutually exclusive in
// practice though the grammar allows several to be written; resolveModifier
// resolves conflicts by precedence, not by validate-time rejection.
func modifierTags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "lower"},
		{Name: "upper"},
		{Name: "lowerfirst"},
		{Name: "upperfirst"},
		{Name: "quotewildcard"},
		{Name: "length"},
	}
}

func validateSet(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 2 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"set\" expects a variable name and a value")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"set\" variable name must be a single string")
	}
	if vals := api.Arena().StringListValues(args[1]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"set\" value must be a single string")
	}
}

// The mod* constants pack which (mutually exclusive) modifier tag was
// present onto one wire byte, in RFC 5229 §4's precedence order: :length beats
// :quotewildcard beats the four case modifiers.
const (
	modNone byte = iota
	modLength
	modQuotewildcard
	modLower
	modUpper
	modLowerfirst
	modUpperfirst
)

func resolveModifier(api registry.GenAPI, cmd ast.NodeID) byte {
	if present, _ := api.Tag(cmd, "length"); present {
		return modLength
	}
	if present, _ := api.Tag(cmd, "quotewildcard"); present {
		return modQuotewildcard
	}
	if present, _ := api.Tag(cmd, "lower"); present {
		return modLower
	}
	if present, _ := api.Tag(cmd, "upper"); present {
		return modUpper
	}
	if present, _ := api.Tag(cmd, "lowerfirst"); present {
		return modLowerfirst
	}
	if present, _ := api.Tag(cmd, "upperfirst"); present {
		return modUpperfirst
	}
	return modNone
}

func generateSet(api registry.GenAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	name := ""
	if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
		name = vals[0]
	}
	value := ""
	if vals := api.Arena().StringListValues(args[1]); len(vals) == 1 {
		value = vals[0]
	}
	api.EmitString(name)
	api.EmitString(value)
	api.EmitByte(resolveModifier(api, cmd))
}

// applyModifier implements each "set" tag's transform (RFC 5229 §4.2-4.5):
// :quotewildcard backslash-escapes the sieve wildcard metacharacters so the
// result is safe to embed in a later ":matches" key; the case modifiers
// act on the whole string or just its first rune.
func applyModifier(mod byte, value string) string {
	switch mod {
	case modLength:
		return strconv.Itoa(len(value))
	case modQuotewildcard:
		var b strings.Builder
		for _, r := range value {
			if r == '*' || r == '?' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		return b.String()
	case modLower:
		return strings.ToLower(value)
	case modUpper:
		return strings.ToUpper(value)
	case modLowerfirst:
		return firstRuneCase(value, strings.ToLower)
	case modUpperfirst:
		return firstRuneCase(value, strings.ToUpper)
	default:
		return value
	}
}

func firstRuneCase(s string, transform func(string) string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return transform(string(runes[0])) + string(runes[1:])
}

func executeSet(api registry.ExecAPI) error {
	name, err := api.ReadString()
	if err != nil {
		return err
	}
	value, err := api.ReadString()
	if err != nil {
		return err
	}
	mod, err := api.ReadByte()
	if err != nil {
		return err
	}
	api.SetVar(name, applyModifier(mod, api.ExpandVariables(value)))
	return nil
}

// matchContextTags is the comparator/match-type trio every match-context
// test must declare itself (TestDef.MatchContext is documentation only;
// tag recognition comes entirely from this table, the same constraint
// extensions/body and extensions/enotify already work around).
func matchContextTags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "comparator", TakesParam: true},
		{Name: "is"},
		{Name: "contains"},
		{Name: "matches"},
	}
}

// validateStringTest enforces RFC 5229 §5's "string" test arity: a source
// string-list to test and a key-list to match each source value against.
func validateStringTest(api registry.ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 2 {
		api.Errorf(api.Arena().Node(test).Line(), "\"string\" expects a source list and a key list")
		return
	}
	keys := api.Arena().StringListValues(args[1])
	api.ResolveMatchContext(test, keys)
}

func generateStringTest(api registry.GenAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	api.EmitStringList(api.Arena().StringListValues(args[0]))
	api.EmitStringList(api.Arena().StringListValues(args[1]))

	ctx, ok := api.MatchContext(test)
	if !ok {
		api.EmitString("i;ascii-casemap")
		api.EmitString("is")
	} else {
		api.EmitString(ctx.Comparator.Name)
		api.EmitString(ctx.Type.Name)
		if ctx.Type.Name == "value" || ctx.Type.Name == "count" {
			api.EmitString(string(ctx.Op))
		}
	}
}

func executeStringTest(api registry.ExecAPI) (bool, error) {
	sources, err := api.ReadStringList()
	if err != nil {
		return false, err
	}
	keys, err := api.ReadStringList()
	if err != nil {
		return false, err
	}
	ctx, err := api.DecodeMatchContext(keys)
	if err != nil {
		return false, err
	}

	if ctx.Type.Name == "count" {
		return ctx.MatchCount(len(sources)), nil
	}
	for _, s := range sources {
		if ctx.MatchValue(api.ExpandVariables(s)) {
			return true, nil
		}
	}
	return false, nil
}

func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "set",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Tags:        modifierTags(),
		Validate:    validateSet,
		Generate:    generateSet,
		Execute:     executeSet,
	})
	r.AddTest(&registry.TestDef{
		Name:         "string",
		ExtensionID:  Extension.ID,
		SubCode:      1,
		MatchContext: true,
		Tags:         matchContextTags(),
		Validate:     validateStringTest,
		Generate:     generateStringTest,
		Execute:      executeStringTest,
	})
	return nil
}

var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
