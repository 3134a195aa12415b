package registry

import "github.com/dovesieve/sieve/ast"

// SplitArgs walks args left to right, peeling off any tag declared in
// shapes (and, for tags declared TakesParam, the argument immediately
// following it), leaving everything else as positional in source order.
// It is the mechanical half of the validator's tagged-argument contract
// (spec.md §4.5); the validator wraps this with diagnostics for unknown
// tags, codegen calls it again post-validation where no unknown tag can
// remain. unknown collects any Tag node not present in shapes, for a
// caller that wants to report them.
func SplitArgs(arena *ast.Arena, args []ast.NodeID, shapes []TagShape) (tagPresent map[string]bool, tagParam map[string]ast.NodeID, positional, unknown []ast.NodeID) {
	known := make(map[string]TagShape, len(shapes))
	for _, s := range shapes {
		known[s.Name] = s
	}

	tagPresent = make(map[string]bool)
	tagParam = make(map[string]ast.NodeID)

	i := 0
	for i < len(args) {
		id := args[i]
		tag, isTag := arena.Node(id).(*ast.Tag)
		if !isTag {
			positional = append(positional, id)
			i++
			continue
		}
		shape, ok := known[tag.Name]
		if !ok {
			unknown = append(unknown, id)
			i++
			continue
		}
		tagPresent[tag.Name] = true
		i++
		if shape.TakesParam {
			if i >= len(args) {
				continue
			}
			tagParam[tag.Name] = args[i]
			i++
		}
	}
	return tagPresent, tagParam, positional, unknown
}
