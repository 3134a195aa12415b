// Package reject implements RFC 5429's "reject" extension: the "reject"
// and "ereject" actions. Both cancel the implicit keep the same way
// "discard" does; they differ only in how a compliant MTA is meant to
// notify the sender (reject as a human-readable DSN-style message,
// ereject as a protocol-level rejection with no generated body) — a
// distinction this module surfaces only in the action's Kind name and
// Detail, since actually bouncing mail is the host's concern, not the
// interpreter's.
package reject

import (
	"fmt"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/result"
)

const Name = "reject"

func validate(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"reject\"/\"ereject\" expect exactly one reason string")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "the reject reason must be a single string")
	}
}

func generate(api registry.GenAPI, cmd ast.NodeID) {
	reason := ""
	if args := api.PositionalArgs(cmd); len(args) == 1 {
		if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
			reason = vals[0]
		}
	}
	api.EmitString(reason)
}

func makeExecute(kind string) func(registry.ExecAPI) error {
	return func(api registry.ExecAPI) error {
		reason, err := api.ReadString()
		if err != nil {
			return err
		}
		return api.AddAction(kind, map[string]any{"reason": api.ExpandVariables(reason)}, nil)
	}
}

func print(a *result.Action) string {
	reason, _ := a.Detail["reason"].(string)
	return fmt.Sprintf("%s{reason=%q}", a.Kind, reason)
}

// rejectKind and erejectKind both cancel the implicit keep without
// themselves delivering anything, the same boolean pair "discard" uses
// (result.Accumulator's built-in "discard" Kind).
var rejectKind = &result.Kind{Name: "reject", CancelsKeep: true, Print: print}
var erejectKind = &result.Kind{Name: "ereject", CancelsKeep: true, Print: print}

func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "reject",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Validate:    validate,
		Generate:    generate,
		Execute:     makeExecute("reject"),
	})
	r.AddCommand(&registry.CommandDef{
		Name:        "ereject",
		ExtensionID: Extension.ID,
		SubCode:     2,
		Validate:    validate,
		Generate:    generate,
		Execute:     makeExecute("ereject"),
	})
	return nil
}

var Extension = &registry.Extension{
	Name:        Name,
	Version:     "1.0",
	Load:        Load,
	ActionKinds: []*result.Kind{rejectKind, erejectKind},
}
