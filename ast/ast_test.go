package ast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/ast"
)

func TestNewArenaReservesSentinel(t *testing.T) {
	a := ast.NewArena()
	assert.Equal(t, 1, a.Len())
}

func TestNodeConstructorsAssignIncreasingIDs(t *testing.T) {
	a := ast.NewArena()
	c := a.NewCommand(1, "keep")
	s := a.NewString(1, "hi", false)
	assert.Equal(t, ast.NodeID(1), c.ID())
	assert.Equal(t, ast.NodeID(2), s.ID())
	assert.Equal(t, ast.KindCommand, c.Kind())
	assert.Equal(t, ast.KindString, s.Kind())
}

func TestStringListValuesResolvesItems(t *testing.T) {
	a := ast.NewArena()
	sl := a.NewStringList(1)
	s1 := a.NewString(1, "a", false)
	s2 := a.NewString(1, "b", false)
	sl.Items = []ast.NodeID{s1.ID(), s2.ID()}

	assert.Equal(t, []string{"a", "b"}, a.StringListValues(sl.ID()))
}

func TestStringListValuesOnWrongKindReturnsNil(t *testing.T) {
	a := ast.NewArena()
	c := a.NewCommand(1, "keep")
	assert.Nil(t, a.StringListValues(c.ID()))
}

func TestAttachRecordsParent(t *testing.T) {
	a := ast.NewArena()
	parent := a.NewCommand(1, "if")
	child := a.NewTest(1, "header")
	a.Attach(parent.ID(), child.ID())
	assert.Equal(t, parent.ID(), a.Parent(child.ID()))
}

func TestAttachSameParentTwiceIsFine(t *testing.T) {
	a := ast.NewArena()
	parent := a.NewCommand(1, "if")
	child := a.NewTest(1, "header")
	a.Attach(parent.ID(), child.ID())
	require.NotPanics(t, func() { a.Attach(parent.ID(), child.ID()) })
}

func TestAttachDifferentParentPanics(t *testing.T) {
	a := ast.NewArena()
	p1 := a.NewCommand(1, "if")
	p2 := a.NewCommand(1, "if")
	child := a.NewTest(1, "header")
	a.Attach(p1.ID(), child.ID())
	assert.Panics(t, func() { a.Attach(p2.ID(), child.ID()) })
}

func TestAnnotateAndAnnotation(t *testing.T) {
	a := ast.NewArena()
	n := a.NewTest(1, "header")
	_, ok := a.Annotation(n.ID(), "matchctx")
	assert.False(t, ok)

	a.Annotate(n.ID(), "matchctx", 42)
	v, ok := a.Annotation(n.ID(), "matchctx")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestKindStringNames(t *testing.T) {
	cases := []struct {
		k    ast.Kind
		want string
	}{
		{ast.KindCommand, "command"},
		{ast.KindTest, "test"},
		{ast.KindIdentifier, "identifier"},
		{ast.KindString, "string"},
		{ast.KindStringList, "string-list"},
		{ast.KindNumber, "number"},
		{ast.KindTag, "tag"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.k.String())
	}
}

func TestDumpRendersCommandTree(t *testing.T) {
	a := ast.NewArena()
	tree := &ast.AST{Arena: a, Filename: "t.sieve"}

	cmd := a.NewCommand(1, "fileinto")
	arg := a.NewStringList(1)
	str := a.NewString(1, "Junk", false)
	arg.Items = []ast.NodeID{str.ID()}
	cmd.Args = []ast.NodeID{arg.ID()}
	a.Attach(cmd.ID(), arg.ID())
	a.Attach(arg.ID(), str.ID())
	tree.Root = []ast.NodeID{cmd.ID()}

	out := ast.Dump(tree)
	assert.Contains(t, out, "fileinto")
	assert.Contains(t, out, "Junk")
}
