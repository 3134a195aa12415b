// Package codegen implements spec.md §4.7: it walks a validated AST and
// emits a main block plus any extension-requested sub-blocks into a
// binary.Binary. Per-command contract: emit the operation's opcode, then
// its operands in the fixed order the operation declares. if/elsif/else
// chains and anyof/allof/not compile directly to a jump graph rather than
// to a generic "test" opcode plus a runtime branch, per spec.md §4.7's
// short-circuit description.
package codegen

import (
	"bytes"
	"sort"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/registry"
)

// include flag bits, decoded by the interpreter's OpInclude handler
// (spec.md §4.8 "Includes"); :personal is the absence of includeFlagGlobal,
// so it needs no flag of its own.
const (
	includeFlagOnce byte = 1 << iota
	includeFlagOptional
	includeFlagGlobal
)

// splitInfo is codegen's own copy of the tag/positional split the
// validator already computed once; Generate runs in a separate pass (over
// a fully validated, possibly serialised-and-reloaded AST) so it is
// recomputed here from the same registry.SplitArgs mechanism rather than
// threading the validator's internal map across a package boundary.
type splitInfo struct {
	tagPresent map[string]bool
	tagParam   map[string]ast.NodeID
	positional []ast.NodeID
}

// Generator walks tree and emits bytecode into blocks, implementing
// registry.GenAPI for extension command/test Generate hooks.
type Generator struct {
	tree *ast.AST
	reg  *registry.Registry
	sink *diag.Sink

	buf  *bytes.Buffer // the block currently being written
	args map[ast.NodeID]*splitInfo

	extBlocks map[int]*registry.ExtBuffer
}

// Generate compiles tree (already validated against reg) into a binary.Binary.
func Generate(tree *ast.AST, reg *registry.Registry, sink *diag.Sink) (*binary.Binary, error) {
	g := &Generator{
		tree:      tree,
		reg:       reg,
		sink:      sink,
		buf:       &bytes.Buffer{},
		args:      make(map[ast.NodeID]*splitInfo),
		extBlocks: make(map[int]*registry.ExtBuffer),
	}
	g.generateBlock(tree.Root)
	g.buf.WriteByte(byte(binary.OpStop))

	bin := &binary.Binary{Blocks: [][]byte{g.buf.Bytes()}}

	extIDs := make([]int, 0, len(g.extBlocks))
	for id := range g.extBlocks {
		extIDs = append(extIDs, id)
	}
	sort.Ints(extIDs)

	blockIDs := make(map[int]uint32, len(extIDs))
	for _, id := range extIDs {
		blockIDs[id] = uint32(len(bin.Blocks))
		bin.Blocks = append(bin.Blocks, g.extBlocks[id].Bytes)
	}

	for _, ext := range g.reg.Extensions() {
		if !g.reg.RequireExtension(ext.Name) {
			continue
		}
		bin.Extensions = append(bin.Extensions, binary.ExtEntry{
			Name:    ext.Name,
			Version: ext.Version,
			BlockID: blockIDs[ext.ID],
		})
	}
	return bin, nil
}

// generateBlock emits a sequence of sibling commands, recognising
// consecutive if/elsif/else commands as one construct (spec.md §4.7).
func (g *Generator) generateBlock(commands []ast.NodeID) {
	i := 0
	for i < len(commands) {
		cmd, ok := g.tree.Arena.Node(commands[i]).(*ast.Command)
		if !ok {
			i++
			continue
		}
		if cmd.Name == "if" {
			arms := []*ast.Command{cmd}
			j := i + 1
			for j < len(commands) {
				next, ok := g.tree.Arena.Node(commands[j]).(*ast.Command)
				if !ok || (next.Name != "elsif" && next.Name != "else") {
					break
				}
				arms = append(arms, next)
				j++
				if next.Name == "else" {
					break
				}
			}
			g.generateIfChain(arms)
			i = j
			continue
		}
		g.generateCommand(commands[i], cmd)
		i++
	}
}

// generateIfChain implements spec.md §4.7's if/elsif/else algorithm: each
// non-final, non-else arm emits its test (jumping past its body on false),
// then an unconditional jump past the remaining arms; the final arm's
// landing point and every recorded exit jump resolve to the instruction
// right after the whole construct.
func (g *Generator) generateIfChain(arms []*ast.Command) {
	var exits []int
	n := len(arms)
	for idx, arm := range arms {
		if arm.Name == "else" {
			g.generateBlock(arm.Block)
			continue
		}
		falsePlaceholders := g.generateTest(arm.Tests[0], false)
		g.generateBlock(arm.Block)
		if idx != n-1 {
			exits = append(exits, g.emitJump(binary.OpJmp))
		}
		g.patchTo(falsePlaceholders, g.Pos())
	}
	g.patchTo(exits, g.Pos())
}

// generateTest compiles test, returning the positions of the jump
// placeholders that should be patched to wherever the caller wants control
// to go when the test evaluates to jumpOnTrue.
func (g *Generator) generateTest(test ast.NodeID, jumpOnTrue bool) []int {
	t, ok := g.tree.Arena.Node(test).(*ast.Test)
	if !ok {
		return nil
	}
	switch t.Name {
	case "not":
		return g.generateTest(t.Subtests[0], !jumpOnTrue)
	case "anyof":
		return g.generateShortCircuit(t.Subtests, jumpOnTrue, true)
	case "allof":
		return g.generateShortCircuit(t.Subtests, jumpOnTrue, false)
	default:
		return g.generateLeafTest(test, t, jumpOnTrue)
	}
}

// generateShortCircuit implements the anyof/allof jump-graph construction
// of spec.md §4.7. isAnyof selects OR vs. AND semantics. When the
// requested polarity matches the construct's natural short-circuit
// direction (anyof+true, allof+false), every subtest shares the caller's
// target directly. Otherwise a common internal landing point is needed so
// that one subtest landing on the "continue" side does not wrongly take
// the caller's jump.
func (g *Generator) generateShortCircuit(subtests []ast.NodeID, jumpOnTrue, isAnyof bool) []int {
	natural := isAnyof == jumpOnTrue
	if natural {
		var placeholders []int
		for _, sub := range subtests {
			placeholders = append(placeholders, g.generateTest(sub, jumpOnTrue)...)
		}
		return placeholders
	}

	var skip []int
	for _, sub := range subtests {
		skip = append(skip, g.generateTest(sub, !jumpOnTrue)...)
	}
	exit := g.emitJump(binary.OpJmp)
	g.patchTo(skip, g.Pos())
	return []int{exit}
}

// generateLeafTest emits a leaf test's opcode and operands (core tests
// directly, extension tests through the registry), followed by the
// conditional jump that reads the test-result register it just set.
func (g *Generator) generateLeafTest(test ast.NodeID, t *ast.Test, jumpOnTrue bool) []int {
	switch t.Name {
	case "true":
		g.buf.WriteByte(byte(binary.OpTestTrue))
	case "false":
		g.buf.WriteByte(byte(binary.OpTestFalse))
	case "exists":
		g.buf.WriteByte(byte(binary.OpTestExists))
		g.EmitStringList(g.tree.Arena.StringListValues(g.PositionalArgs(test)[0]))
	case "size":
		g.generateSize(test)
	case "header":
		g.buf.WriteByte(byte(binary.OpTestHeader))
		g.emitPositionalStringLists(test)
		g.emitMatchContext(test)
	case "address":
		g.buf.WriteByte(byte(binary.OpTestAddress))
		g.emitPositionalStringLists(test)
		g.emitMatchContext(test)
		g.emitAddressPart(test)
	case "envelope":
		g.buf.WriteByte(byte(binary.OpTestEnvelope))
		g.emitPositionalStringLists(test)
		g.emitMatchContext(test)
		g.emitAddressPart(test)
	default:
		def, ok := g.reg.Test(t.Name)
		if !ok || def.Generate == nil {
			g.sink.Errorf(t.Line(), "test %q has no code generator", t.Name)
			g.buf.WriteByte(byte(binary.OpTestFalse))
			break
		}
		g.buf.WriteByte(binary.EncodeExtensionOpcode(def.ExtensionID))
		g.EmitUvarint(def.SubCode)
		def.Generate(g, test)
	}

	if jumpOnTrue {
		return []int{g.emitJump(binary.OpJmpTrue)}
	}
	return []int{g.emitJump(binary.OpJmpFalse)}
}

func (g *Generator) generateSize(test ast.NodeID) {
	overPresent, overParam := g.Tag(test, "over")
	if overPresent {
		g.buf.WriteByte(byte(binary.OpTestSizeOver))
	} else {
		g.buf.WriteByte(byte(binary.OpTestSizeUnder))
	}
	param := overParam
	if !overPresent {
		_, param = g.Tag(test, "under")
	}
	if n, ok := g.tree.Arena.Node(param).(*ast.Number); ok {
		g.EmitUvarint(n.Value)
	} else {
		g.EmitUvarint(0)
	}
}

// emitMatchContext writes the comparator/match-type (and relational
// operator, if any) a prior validator.ResolveMatchContext call resolved
// for test.
func (g *Generator) emitMatchContext(test ast.NodeID) {
	ctx, ok := g.MatchContext(test)
	if !ok {
		g.EmitString("i;ascii-casemap")
		g.EmitString("is")
		return
	}
	g.EmitString(ctx.Comparator.Name)
	g.EmitString(ctx.Type.Name)
	if ctx.Type.Name == "value" || ctx.Type.Name == "count" {
		g.EmitString(string(ctx.Op))
	}
}

// emitAddressPart writes the address-part a prior ResolveMatchContext call
// resolved for an address-part-eligible test.
func (g *Generator) emitAddressPart(test ast.NodeID) {
	part, ok := g.AddressPart(test)
	if !ok {
		g.EmitString("all")
		return
	}
	g.EmitString(part.Name)
}

// emitPositionalStringLists writes each of test's positional arguments as
// a string-list operand, in source order (header.go's header-name list
// and key list, for example).
func (g *Generator) emitPositionalStringLists(test ast.NodeID) {
	for _, arg := range g.PositionalArgs(test) {
		g.EmitStringList(g.tree.Arena.StringListValues(arg))
	}
}

// generateCommand resolves a non-control-flow command against the
// registry and emits it: core actions hardcoded, extension commands
// through their registered Generate hook.
func (g *Generator) generateCommand(id ast.NodeID, cmd *ast.Command) {
	switch cmd.Name {
	case "stop":
		g.buf.WriteByte(byte(binary.OpStop))
		return
	case "keep":
		g.buf.WriteByte(byte(binary.OpKeep))
		if present, param := g.Tag(id, "flags"); present {
			g.EmitByte(1)
			g.EmitStringList(g.tree.Arena.StringListValues(param))
		} else {
			g.EmitByte(0)
		}
		return
	case "discard":
		g.buf.WriteByte(byte(binary.OpDiscard))
		return
	case "redirect":
		g.buf.WriteByte(byte(binary.OpRedirect))
		if args := g.PositionalArgs(id); len(args) == 1 {
			vals := g.tree.Arena.StringListValues(args[0])
			if len(vals) == 1 {
				g.EmitString(vals[0])
				return
			}
		}
		g.EmitString("")
		return
	case "include":
		g.buf.WriteByte(byte(binary.OpInclude))
		var flags byte
		if present, _ := g.Tag(id, "once"); present {
			flags |= includeFlagOnce
		}
		if present, _ := g.Tag(id, "optional"); present {
			flags |= includeFlagOptional
		}
		if present, _ := g.Tag(id, "global"); present {
			flags |= includeFlagGlobal
		}
		g.EmitByte(flags)
		name := ""
		if args := g.PositionalArgs(id); len(args) == 1 {
			if vals := g.tree.Arena.StringListValues(args[0]); len(vals) == 1 {
				name = vals[0]
			}
		}
		g.EmitString(name)
		return
	case "require", "return":
		// require is compile-time only (spec.md §4.6 design notes) and
		// emits nothing; return emits OpReturn, which the interpreter
		// handles by popping its include stack (or halting at the top
		// level).
		if cmd.Name == "return" {
			g.buf.WriteByte(byte(binary.OpReturn))
		}
		return
	}

	def, ok := g.reg.Command(cmd.Name)
	if !ok || def.Generate == nil {
		g.sink.Errorf(cmd.Line(), "command %q has no code generator", cmd.Name)
		return
	}
	g.buf.WriteByte(binary.EncodeExtensionOpcode(def.ExtensionID))
	g.EmitUvarint(def.SubCode)
	def.Generate(g, id)
}

func (g *Generator) emitJump(op binary.Opcode) int {
	g.buf.WriteByte(byte(op))
	return binary.PutOffsetPlaceholder(g.buf)
}

// patchTo patches every placeholder in placeholders to jump to target,
// expressed as a delta relative to the byte immediately following each
// placeholder's own encoding (spec.md §4.6 "offset").
func (g *Generator) patchTo(placeholders []int, target int) {
	for _, ph := range placeholders {
		delta := int64(target - (ph + binary.OffsetWidth))
		binary.PatchOffset(g.buf, ph, delta)
	}
}

// infoFor lazily computes and caches the tag/positional split for id,
// looking up its TagShape table from the registry by command or test name.
func (g *Generator) infoFor(id ast.NodeID) *splitInfo {
	if info, ok := g.args[id]; ok {
		return info
	}
	var args []ast.NodeID
	var shapes []registry.TagShape
	switch n := g.tree.Arena.Node(id).(type) {
	case *ast.Command:
		args = n.Args
		if def, ok := g.reg.Command(n.Name); ok {
			shapes = def.Tags
		}
	case *ast.Test:
		args = n.Args
		if def, ok := g.reg.Test(n.Name); ok {
			shapes = def.Tags
		}
	}
	tagPresent, tagParam, positional, _ := registry.SplitArgs(g.tree.Arena, args, shapes)
	info := &splitInfo{tagPresent: tagPresent, tagParam: tagParam, positional: positional}
	g.args[id] = info
	return info
}

// registry.GenAPI implementation.

func (g *Generator) Arena() *ast.Arena { return g.tree.Arena }

func (g *Generator) Tag(node ast.NodeID, name string) (bool, ast.NodeID) {
	info := g.infoFor(node)
	return info.tagPresent[name], info.tagParam[name]
}

func (g *Generator) PositionalArgs(node ast.NodeID) []ast.NodeID {
	return g.infoFor(node).positional
}

func (g *Generator) MatchContext(test ast.NodeID) (match.Context, bool) {
	val, ok := g.tree.Arena.Annotation(test, registry.AnnMatchContext)
	if !ok {
		return match.Context{}, false
	}
	return val.(match.Context), true
}

func (g *Generator) AddressPart(test ast.NodeID) (match.AddressPart, bool) {
	val, ok := g.tree.Arena.Annotation(test, registry.AnnAddressPart)
	if !ok {
		return match.AddressPart{}, false
	}
	return val.(match.AddressPart), true
}

func (g *Generator) EmitByte(b byte)      { g.buf.WriteByte(b) }
func (g *Generator) EmitUvarint(v uint64) { binary.PutUvarint(g.buf, v) }
func (g *Generator) EmitString(s string)  { binary.PutString(g.buf, s) }

func (g *Generator) EmitStringList(values []string) {
	binary.PutUvarint(g.buf, uint64(len(values)))
	for _, v := range values {
		binary.PutString(g.buf, v)
	}
}

func (g *Generator) EmitOffsetPlaceholder() int { return binary.PutOffsetPlaceholder(g.buf) }

func (g *Generator) PatchOffset(token int, delta int64) { binary.PatchOffset(g.buf, token, delta) }

func (g *Generator) Pos() int { return g.buf.Len() }

func (g *Generator) ExtensionBlock(extensionID int) *registry.ExtBuffer {
	b, ok := g.extBlocks[extensionID]
	if !ok {
		b = &registry.ExtBuffer{}
		g.extBlocks[extensionID] = b
	}
	return b
}
