package ast

import (
	"fmt"
	"strings"
)

// Dump renders tree as an indented s-expression-like tree, for a CLI's
// "dump" subcommand to show a compiled script's parsed structure. Purely a
// debugging aid; nothing in the pipeline parses this format back.
func Dump(tree *AST) string {
	var b strings.Builder
	for _, id := range tree.Root {
		dumpNode(&b, tree.Arena, id, 0)
	}
	return b.String()
}

func dumpNode(b *strings.Builder, a *Arena, id NodeID, depth int) {
	if id == 0 {
		return
	}
	indent := strings.Repeat("  ", depth)
	switch n := a.Node(id).(type) {
	case *Command:
		fmt.Fprintf(b, "%scommand %s\n", indent, n.Name)
		for _, arg := range n.Args {
			dumpNode(b, a, arg, depth+1)
		}
		for _, test := range n.Tests {
			dumpNode(b, a, test, depth+1)
		}
		for _, child := range n.Block {
			dumpNode(b, a, child, depth+1)
		}
	case *Test:
		fmt.Fprintf(b, "%stest %s\n", indent, n.Name)
		for _, arg := range n.Args {
			dumpNode(b, a, arg, depth+1)
		}
		for _, sub := range n.Subtests {
			dumpNode(b, a, sub, depth+1)
		}
	case *Identifier:
		fmt.Fprintf(b, "%sidentifier %s\n", indent, n.Name)
	case *String:
		fmt.Fprintf(b, "%sstring %q\n", indent, n.Value)
	case *StringList:
		fmt.Fprintf(b, "%sstring-list\n", indent)
		for _, item := range n.Items {
			dumpNode(b, a, item, depth+1)
		}
	case *Number:
		fmt.Fprintf(b, "%snumber %d\n", indent, n.Value)
	case *Tag:
		fmt.Fprintf(b, "%stag :%s\n", indent, n.Name)
	}
}
