package registry

import (
	"time"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/message"
)

// ValidateAPI is the narrow surface a CommandDef/TestDef's Validate hook
// gets, instead of the registry importing the validator package directly.
// The validator implements this interface; registry only depends on it.
type ValidateAPI interface {
	// Arena gives read access to the AST being validated.
	Arena() *ast.Arena
	// Errorf reports a validation error at line, without aborting the walk
	// (spec.md §4.5 errors are additive).
	Errorf(line int, format string, args ...any)
	// Tag returns the argument node of the named tag attached to node, if
	// consumed already via the generic tag table, or 0 if the tag wasn't
	// present. For tags declared TakesParam, arg is the parameter node
	// (a StringList or Number); for others arg is 0.
	Tag(node ast.NodeID, name string) (present bool, arg ast.NodeID)
	// PositionalArgs returns node's Args with all recognised tags removed,
	// in source order — the plain positional arguments a hook should
	// interpret itself.
	PositionalArgs(node ast.NodeID) []ast.NodeID
	// ResolveMatchContext builds the comparator/match-type/address-part
	// triple for a test that declared MatchContext, applying the defaults
	// of spec.md §4.9 and recording the resolution as an AST annotation
	// codegen will later read back.
	ResolveMatchContext(test ast.NodeID, keys []string) match.Context
	// RequireExtension reports whether name was declared via "require".
	RequireExtension(name string) bool
	// DeclareRequire records name as required by the script's "require"
	// statement, returning false if name names no registered extension.
	DeclareRequire(name string) bool
}

// GenAPI is the narrow surface a CommandDef/TestDef's Generate hook gets.
// The codegen package implements it; registry never imports codegen.
type GenAPI interface {
	Arena() *ast.Arena
	// Tag and PositionalArgs mirror ValidateAPI's, rebuilt from the same
	// TagShape table post-validation (no unknown tag can remain by the
	// time Generate runs).
	Tag(node ast.NodeID, name string) (present bool, arg ast.NodeID)
	PositionalArgs(node ast.NodeID) []ast.NodeID
	// MatchContext retrieves the context a prior ResolveMatchContext call
	// annotated onto a test node.
	MatchContext(test ast.NodeID) (match.Context, bool)
	// AddressPart retrieves the address-part a prior ResolveMatchContext
	// call annotated onto an address-part-eligible test node.
	AddressPart(test ast.NodeID) (match.AddressPart, bool)

	EmitByte(b byte)
	EmitUvarint(v uint64)
	EmitString(s string)
	EmitStringList(values []string)
	// EmitOffsetPlaceholder reserves space for a forward jump and returns a
	// token to pass to PatchOffset once the target is known.
	EmitOffsetPlaceholder() int
	PatchOffset(token int, delta int64)
	// Pos returns the current write position within the block being
	// generated, for computing jump deltas.
	Pos() int

	// ExtensionBlock returns the private data block for extensionID,
	// creating it on first use, for commands that need config alongside
	// (not interleaved with) the instruction stream — e.g. a vacation
	// reply template.
	ExtensionBlock(extensionID int) *ExtBuffer
}

// ExecAPI is the narrow surface a CommandDef/TestDef's Execute hook gets.
// The interpreter package implements it; registry never imports interpreter.
type ExecAPI interface {
	ReadByte() (byte, error)
	ReadUvarint() (uint64, error)
	ReadOffset() (int64, error)
	ReadString() (string, error)
	ReadStringList() ([]string, error)

	// ExpandVariables interpolates "${name}" references using the
	// variables extension's current bindings (spec.md §9); a no-op if the
	// variables extension was never required.
	ExpandVariables(s string) string

	// DecodeMatchContext reads the comparator/match-type operand triple a
	// Generate hook wrote in the same wire shape the core header/address/
	// envelope tests use (see codegen's emitMatchContext), reconstructing
	// a match.Context against this run's capture store. For extension
	// tests that declared MatchContext themselves (e.g. "body").
	DecodeMatchContext(keys []string) (match.Context, error)

	// Header returns the decoded values of the named header field.
	Header(name string) ([]string, error)
	// Envelope returns the envelope field (from/to), if the transport
	// supplied one.
	Envelope(part string) (string, error)
	// Size is the message's size in octets.
	Size() int64
	// BodyText returns the message body decoded as the given content type
	// ("" or "text" for the default profile, "raw" for untransformed).
	BodyText(contentType string) (string, error)

	// SetTestResult stores a value in the single test-result register
	// (spec.md §4.7). A TestDef's Execute hook returns its bool instead and
	// the interpreter stores it there, so extension tests compose with
	// core anyof/allof/not jump graphs uniformly.
	SetTestResult(v bool)

	// AddAction enqueues a result-accumulator action; see spec.md §4.10.
	// flags carries whatever IMAP flag set (imap4flags' ":flags" tag, or
	// the ambient unnamed variable set by setflag/addflag) should ride
	// along with the action — nil for actions the flag extension never
	// touches.
	AddAction(kind string, detail map[string]any, flags []string) error
	// SetFlag / Flags manage the IMAP flag set carried between
	// imap4flags and fileinto/keep, per spec.md §9.
	SetFlags(variable string, flags []string, mode FlagMode)
	Flags(variable string) []string

	// Var/SetVar implement the variables extension's key/value store.
	Var(name string) (string, bool)
	SetVar(name, value string)

	// CheckDuplicate reports whether key was already recorded by a prior
	// call within period, and records key as seen now regardless of the
	// answer (vacation's ":handle" dedup, spec.md §8 Scenario B). A host
	// that never configured a tracker always reports false (never seen).
	CheckDuplicate(key string, period time.Duration) (bool, error)

	// Cancelled reports whether the run was asked to stop (timeout or
	// explicit cancellation), checked at safe points between opcodes.
	Cancelled() bool

	// EditHeader returns the host message's optional edit-header facility
	// (RFC 5293), and whether the host message implements it at all; a
	// Message that doesn't is not an error, editheader commands simply
	// report not_possible (spec.md §7).
	EditHeader() (message.Editor, bool)
}

// Annotation keys ResolveMatchContext records on a test node (via
// ast.Arena.Annotate) for GenAPI.MatchContext/AddressPart to read back.
const (
	AnnMatchContext = "matchctx"
	AnnAddressPart  = "addresspart"
)

// FlagMode selects how SetFlags combines with any flags already present.
type FlagMode int

const (
	FlagSet FlagMode = iota
	FlagAdd
	FlagRemove
)

// ExtBuffer is a growable byte sink handed out by GenAPI.ExtensionBlock,
// kept as a named type (rather than *bytes.Buffer directly) so registry
// does not need to re-export bytes.Buffer's full method set.
type ExtBuffer struct {
	Bytes []byte
}

func (b *ExtBuffer) Write(p []byte) (int, error) {
	b.Bytes = append(b.Bytes, p...)
	return len(p), nil
}
