// Package fileinto implements RFC 5228 §4.1's "fileinto" extension: file
// the message into a named mailbox instead of (or in addition to) the
// default keep. It is kept a require-gated extension rather than a core
// command because plain RFC 5228 without "fileinto" has no mailbox
// concept to file into.
package fileinto

import (
	"fmt"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/result"
)

const Name = "fileinto"

// flagsTag is fileinto's ":flags" tag; imap4flags' Load hook appends an
// identical TagShape of its own to "keep" (TakesParam: true in both).
var flagsTag = registry.TagShape{Name: "flags", TakesParam: true}

func validate(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"fileinto\" expects exactly one mailbox name")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"fileinto\" mailbox name must be a single string")
	}
}

func generate(api registry.GenAPI, cmd ast.NodeID) {
	folder := ""
	if args := api.PositionalArgs(cmd); len(args) == 1 {
		if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
			folder = vals[0]
		}
	}
	api.EmitString(folder)

	if present, param := api.Tag(cmd, "flags"); present {
		api.EmitByte(1)
		api.EmitStringList(api.Arena().StringListValues(param))
		return
	}
	api.EmitByte(0)
}

func execute(api registry.ExecAPI) error {
	folder, err := api.ReadString()
	if err != nil {
		return err
	}
	hasFlags, err := api.ReadByte()
	if err != nil {
		return err
	}

	var flags []string
	if hasFlags == 1 {
		raw, err := api.ReadStringList()
		if err != nil {
			return err
		}
		flags = make([]string, len(raw))
		for i, f := range raw {
			flags[i] = api.ExpandVariables(f)
		}
	} else {
		flags = api.Flags("")
	}

	return api.AddAction("fileinto", map[string]any{"folder": api.ExpandVariables(folder)}, flags)
}

// mergeFlags implements RFC 5232 §5's note that a variable bound to an
// action via two fileinto statements to the same mailbox carries the
// union of each statement's flags, rather than the second silently
// discarding the first's.
func mergeFlags(existing, next *result.Action) {
	seen := make(map[string]bool, len(existing.Flags))
	for _, f := range existing.Flags {
		seen[f] = true
	}
	for _, f := range next.Flags {
		if !seen[f] {
			existing.Flags = append(existing.Flags, f)
			seen[f] = true
		}
	}
}

func dedup(existing, next *result.Action) result.Verdict {
	if existing.Key == next.Key {
		return result.Merge
	}
	return result.Distinct
}

func print(a *result.Action) string {
	folder, _ := a.Detail["folder"].(string)
	if len(a.Flags) == 0 {
		return fmt.Sprintf("fileinto{mailbox=%q}", folder)
	}
	return fmt.Sprintf("fileinto{mailbox=%q, flags=%v}", folder, a.Flags)
}

// ActionKind is the result.Kind fileinto contributes: folder-keyed dedup
// with flag-set merging, and delivery semantics that suppress the
// implicit keep (spec.md §4.10).
var ActionKind = &result.Kind{
	Name:             "fileinto",
	ProvidesDelivery: true,
	CheckDuplicate:   dedup,
	MergeSideEffects: mergeFlags,
	Print:            print,
}

// Load installs "fileinto" and the ":flags" tag it accepts directly (the
// imap4flags extension, when also required, attaches the same tag shape
// to "keep"; fileinto needs no dependency on imap4flags to accept its own
// ":flags" since RFC 5228 §4.1 ties the tag to fileinto itself, not to the
// imap4flags extension that merely lets the rest of the script shape the
// ambient flag set fileinto defaults to).
func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "fileinto",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Tags:        []registry.TagShape{flagsTag},
		Validate:    validate,
		Generate:    generate,
		Execute:     execute,
	})
	return nil
}

// Extension is captured by Load as a closure over this same package
// variable: RegisterExtension assigns Extension.ID before calling Load, so
// by the time Load runs the CommandDef above gets the right extension id.
var Extension = &registry.Extension{
	Name:        Name,
	Version:     "1.0",
	Load:        Load,
	ActionKinds: []*result.Kind{ActionKind},
}
