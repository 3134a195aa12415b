// Package body implements RFC 5173's "body" test: match the message body
// (rather than a header field) against a key list. The three
// BODY-TRANSFORM tags select what "the body" means for matching purposes;
// :content's content-type filter is accepted for grammar compatibility but
// not applied beyond the default/raw split ExecAPI.BodyText exposes,
// since the host message interface does not decompose MIME structure any
// finer than that.
package body

import (
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
)

const Name = "body"

func tags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "comparator", TakesParam: true},
		{Name: "is"},
		{Name: "contains"},
		{Name: "matches"},
		{Name: "raw"},
		{Name: "text"},
		{Name: "content", TakesParam: true},
	}
}

func validate(api registry.ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(test).Line(), "\"body\" expects exactly one key-list argument, got %d", len(args))
		return
	}
	keys := api.Arena().StringListValues(args[0])
	api.ResolveMatchContext(test, keys)

	raw, _ := api.Tag(test, "raw")
	text, _ := api.Tag(test, "text")
	content, _ := api.Tag(test, "content")
	count := 0
	for _, present := range []bool{raw, text, content} {
		if present {
			count++
		}
	}
	if count > 1 {
		api.Errorf(api.Arena().Node(test).Line(), "\"body\" accepts at most one of :raw, :text, :content")
	}
}

// contentType resolves which of ExecAPI.BodyText's two profiles a
// BODY-TRANSFORM tag maps to: ":raw" is the untransformed body; ":text",
// ":content" and the untagged default all request the default decoded
// text profile.
func contentType(present bool) string {
	if present {
		return "raw"
	}
	return ""
}

func generate(api registry.GenAPI, test ast.NodeID) {
	rawPresent, _ := api.Tag(test, "raw")
	api.EmitString(contentType(rawPresent))

	args := api.PositionalArgs(test)
	api.EmitStringList(api.Arena().StringListValues(args[0]))

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

func execute(api registry.ExecAPI) (bool, error) {
	ct, err := api.ReadString()
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

	text, err := api.BodyText(ct)
	if err != nil {
		return false, err
	}

	if ctx.Type.Name == "count" {
		n := 0
		if text != "" {
			n = 1
		}
		return ctx.MatchCount(n), nil
	}
	return ctx.MatchValue(text), nil
}

func Load(r *registry.Registry) error {
	r.AddTest(&registry.TestDef{
		Name:         Name,
		ExtensionID:  Extension.ID,
		SubCode:      1,
		MatchContext: true,
		Tags:         tags(),
		Validate:     validate,
		Generate:     generate,
		Execute:      execute,
	})
	return nil
}

var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
