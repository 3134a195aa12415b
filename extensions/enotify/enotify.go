// Package enotify implements RFC 5435's "notify" action and its two
// supporting tests, "valid_notify_method" and "notify_method_capability".
// The legacy "notify" extension name (draft-ietf-sieve-notify, obsoleted
// by RFC 5435 but still in the wild) is registered as a validate-time-
// conflicting alias, exactly as imap4flags/imapflags: both names enable
// the same "notify" command, since the command's syntax did not change
// between the two RFCs, only the capability string a script requires.
//
// This package has no network transport to actually dispatch a
// notification through (out of scope per spec.md's non-goals excluding
// network protocol endpoints), so "valid_notify_method" and
// "notify_method_capability" are answered from a small built-in table of
// the notification-method schemes and capabilities RFC 5435 itself
// documents (mailto, xmpp, tel, sms), rather than a live capability
// query.
package enotify

import (
	"fmt"
	"strings"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/result"
)

const (
	Name      = "enotify"
	AliasName = "notify"
)

func notifyTags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "from", TakesParam: true},
		{Name: "importance", TakesParam: true},
		{Name: "options", TakesParam: true},
		{Name: "message", TakesParam: true},
	}
}

func validateNotify(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"notify\" expects exactly one method URI")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"notify\" method must be a single string")
	}
	if present, arg := api.Tag(cmd, "importance"); present {
		vals := api.Arena().StringListValues(arg)
		if len(vals) != 1 || (vals[0] != "1" && vals[0] != "2" && vals[0] != "3") {
			api.Errorf(api.Arena().Node(cmd).Line(), "\"notify\" :importance must be \"1\", \"2\", or \"3\"")
		}
	}
}

func singleString(api registry.GenAPI, cmd ast.NodeID, name string) (string, bool) {
	present, arg := api.Tag(cmd, name)
	if !present {
		return "", false
	}
	if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
		return vals[0], true
	}
	return "", true
}

func generateNotify(api registry.GenAPI, cmd ast.NodeID) {
	method := ""
	if args := api.PositionalArgs(cmd); len(args) == 1 {
		if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
			method = vals[0]
		}
	}
	api.EmitString(method)

	from, _ := singleString(api, cmd, "from")
	api.EmitString(from)
	importance, _ := singleString(api, cmd, "importance")
	if importance == "" {
		importance = "2"
	}
	api.EmitString(importance)
	message, _ := singleString(api, cmd, "message")
	api.EmitString(message)

	if present, arg := api.Tag(cmd, "options"); present {
		api.EmitStringList(api.Arena().StringListValues(arg))
	} else {
		api.EmitStringList(nil)
	}
}

func executeNotify(api registry.ExecAPI) error {
	method, err := api.ReadString()
	if err != nil {
		return err
	}
	from, err := api.ReadString()
	if err != nil {
		return err
	}
	importance, err := api.ReadString()
	if err != nil {
		return err
	}
	message, err := api.ReadString()
	if err != nil {
		return err
	}
	options, err := api.ReadStringList()
	if err != nil {
		return err
	}
	return api.AddAction("notify", map[string]any{
		"method":     api.ExpandVariables(method),
		"from":       api.ExpandVariables(from),
		"importance": importance,
		"message":    api.ExpandVariables(message),
		"options":    options,
	}, nil)
}

func printNotify(a *result.Action) string {
	return fmt.Sprintf("notify{method=%q}", a.Detail["method"])
}

var ActionKind = &result.Kind{Name: "notify", Print: printNotify}

// methodCapabilities is RFC 5435 §8.1's IANA-registered scheme set,
// narrowed to the handful of capabilities the RFC itself documents as
// examples; a scheme absent from this table is simply "not valid" for
// valid_notify_method, and a capability absent from a present scheme's
// entry answers "no" for notify_method_capability.
var methodCapabilities = map[string][]string{
	"mailto": {"from", "subject", "message", "importance"},
	"xmpp":   {"message", "importance"},
	"tel":    {"message"},
	"sms":    {"message"},
}

func schemeOf(uri string) string {
	if i := strings.Index(uri, ":"); i > 0 {
		return strings.ToLower(uri[:i])
	}
	return ""
}

func validateValidNotifyMethod(api registry.ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(test).Line(), "\"valid_notify_method\" expects exactly one URI list")
	}
}

func generateValidNotifyMethod(api registry.GenAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	api.EmitStringList(api.Arena().StringListValues(args[0]))
}

func executeValidNotifyMethod(api registry.ExecAPI) (bool, error) {
	uris, err := api.ReadStringList()
	if err != nil {
		return false, err
	}
	for _, uri := range uris {
		if _, ok := methodCapabilities[schemeOf(uri)]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchContextTags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "comparator", TakesParam: true},
		{Name: "is"},
		{Name: "contains"},
		{Name: "matches"},
	}
}

func validateNotifyMethodCapability(api registry.ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 3 {
		api.Errorf(api.Arena().Node(test).Line(), "\"notify_method_capability\" expects a URI, a capability name, and a key list")
		return
	}
	keys := api.Arena().StringListValues(args[2])
	api.ResolveMatchContext(test, keys)
}

func generateNotifyMethodCapability(api registry.GenAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	api.EmitStringList(api.Arena().StringListValues(args[0]))
	api.EmitStringList(api.Arena().StringListValues(args[1]))
	api.EmitStringList(api.Arena().StringListValues(args[2]))

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

func executeNotifyMethodCapability(api registry.ExecAPI) (bool, error) {
	uriList, err := api.ReadStringList()
	if err != nil {
		return false, err
	}
	capList, err := api.ReadStringList()
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
	if len(uriList) != 1 || len(capList) != 1 {
		return false, nil
	}
	caps, ok := methodCapabilities[schemeOf(uriList[0])]
	if !ok {
		return false, nil
	}
	for _, c := range caps {
		if strings.EqualFold(c, capList[0]) {
			return ctx.MatchValue("yes"), nil
		}
	}
	return ctx.MatchValue("no"), nil
}

func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "notify",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Tags:        notifyTags(),
		Validate:    validateNotify,
		Generate:    generateNotify,
		Execute:     executeNotify,
	})
	r.AddTest(&registry.TestDef{
		Name:        "valid_notify_method",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Validate:    validateValidNotifyMethod,
		Generate:    generateValidNotifyMethod,
		Execute:     executeValidNotifyMethod,
	})
	r.AddTest(&registry.TestDef{
		Name:         "notify_method_capability",
		ExtensionID:  Extension.ID,
		SubCode:      2,
		MatchContext: true,
		Tags:         matchContextTags(),
		Validate:     validateNotifyMethodCapability,
		Generate:     generateNotifyMethodCapability,
		Execute:      executeNotifyMethodCapability,
	})
	return nil
}

var Extension = &registry.Extension{
	Name:        Name,
	Version:     "1.0",
	Load:        Load,
	ActionKinds: []*result.Kind{ActionKind},
}

func LoadAlias(r *registry.Registry) error {
	r.AddAliasPair(Name, AliasName)
	return nil
}

var AliasExtension = &registry.Extension{Name: AliasName, Version: "1.0", Load: LoadAlias}
