package validator

import (
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/registry"
)

// argInfo is the per-node result of the generic tagged-argument
// consumption loop (spec.md §4.5): which declared tags were present, the
// parameter node attached to any that take one, and the remaining
// positional arguments in source order.
type argInfo struct {
	tagPresent          map[string]bool
	tagParam            map[string]ast.NodeID
	positional          []ast.NodeID
	addressPartEligible bool
}

// consumeArgs splits args into tagged and positional via registry.SplitArgs,
// reporting each unrecognised tag once with a fuzzy "did you mean"
// suggestion, and reporting a tag declared TakesParam that ran out of
// arguments.
func (v *Validator) consumeArgs(owner ast.NodeID, args []ast.NodeID, shapes []registry.TagShape) *argInfo {
	names := make([]string, len(shapes))
	for i, s := range shapes {
		names[i] = s.Name
	}

	tagPresent, tagParam, positional, unknown := registry.SplitArgs(v.tree.Arena, args, shapes)

	for _, id := range unknown {
		tag := v.tree.Arena.Node(id).(*ast.Tag)
		v.sink.Errorf(tag.Line(), "%s", diag.UnknownIdentifier("tag", ":"+tag.Name, names))
	}
	for _, shape := range shapes {
		if shape.TakesParam && tagPresent[shape.Name] {
			if _, ok := tagParam[shape.Name]; !ok {
				v.sink.Errorf(v.tree.Arena.Node(owner).Line(), "tag :%s requires a parameter", shape.Name)
			}
		}
	}

	info := &argInfo{tagPresent: tagPresent, tagParam: tagParam, positional: positional}
	v.args[owner] = info
	return info
}

func (v *Validator) infoFor(node ast.NodeID) *argInfo {
	info := v.args[node]
	if info == nil {
		return &argInfo{tagPresent: map[string]bool{}, tagParam: map[string]ast.NodeID{}}
	}
	return info
}

// ValidateAPI implementation: Tag / PositionalArgs.

func (v *Validator) Tag(node ast.NodeID, name string) (bool, ast.NodeID) {
	info := v.infoFor(node)
	return info.tagPresent[name], info.tagParam[name]
}

func (v *Validator) PositionalArgs(node ast.NodeID) []ast.NodeID {
	return v.infoFor(node).positional
}
