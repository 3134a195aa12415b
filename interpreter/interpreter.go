// Package interpreter implements spec.md §4.8: a single-cursor, stack-free
// execution of a compiled binary's main block against a message, producing
// a result.Accumulator of pending actions. Core opcodes are dispatched by
// a hardcoded Go switch (mirroring codegen's hardcoded emission of them);
// every extension opcode dispatches through its registry.CommandDef/TestDef
// Execute hook via registry.ExecAPI, which this package implements.
package interpreter

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/result"
	"github.com/dovesieve/sieve/sieveerr"
)

// IncludeResolver loads the binary for a script named by an "include"
// command (spec.md §4.8 "Includes"), sharing this run's Registry (an
// included script must have been compiled against the same extension
// set). Returning an error with optional==false is a fatal bin_corrupt;
// see Config.
type IncludeResolver func(name string, personal bool) (*binary.Binary, error)

// Config configures one interpreter Run.
type Config struct {
	// MaxIncludeDepth bounds how many nested "include"s may be active at
	// once; 0 means the default of 10 (spec.md §5 "Maximum include depth
	// ... enforced from configuration").
	MaxIncludeDepth int
	// MaxIncludeCount bounds the total number of scripts included over
	// the whole run, independent of nesting depth; 0 means the default
	// of 100.
	MaxIncludeCount int
	// Cancelled is polled at each opcode boundary (spec.md §5
	// "Cancellation"); nil means never cancelled.
	Cancelled func() bool
	// Resolve loads an included script's binary; nil means a non-optional
	// "include" fails bin_corrupt and an :optional one is skipped.
	Resolve IncludeResolver
	// Duplicates backs the ":handle" dedup of the vacation extension and
	// RFC 7352's "duplicate" test; nil means no key is ever considered a
	// duplicate.
	Duplicates DuplicateTracker
}

// DuplicateTracker records handle/period pairs across interpreter runs so
// the vacation extension can suppress a repeat autoreply to the same
// correspondent within the configured period (spec.md §8 Scenario B). A
// host backs this with whatever storage survives between runs; interpreter
// ships MemoryDuplicateTracker for tests and single-process hosts.
type DuplicateTracker interface {
	// Seen reports whether key was already recorded within period of now,
	// and records key as seen now regardless of the answer.
	Seen(key string, period time.Duration) (bool, error)
}

const (
	defaultMaxIncludeDepth = 10
	defaultMaxIncludeCount = 100
)

// frame is a suspended script the include stack can resume into.
type frame struct {
	r     *bytes.Reader
	block []byte
}

// interp holds one run's mutable state.
type interp struct {
	reg *registry.Registry
	msg message.Message
	acc *result.Accumulator
	cfg Config

	r     *bytes.Reader
	block []byte

	testResult bool
	caps       match.Captures
	vars       map[string]string
	flags      map[string][]string

	includeStack []frame
	includeCount int
}

// Run executes bin's main block against msg, returning the
// result.Accumulator of pending actions (not yet committed — call
// Accumulator.Commit to apply side effects).
func Run(bin *binary.Binary, reg *registry.Registry, msg message.Message, cfg Config) (*result.Accumulator, error) {
	if cfg.MaxIncludeDepth == 0 {
		cfg.MaxIncludeDepth = defaultMaxIncludeDepth
	}
	if cfg.MaxIncludeCount == 0 {
		cfg.MaxIncludeCount = defaultMaxIncludeCount
	}
	main := bin.MainBlock()
	acc := result.New()
	for _, ext := range reg.Extensions() {
		if !reg.RequireExtension(ext.Name) {
			continue
		}
		for _, k := range ext.ActionKinds {
			acc.AddKind(k)
		}
	}

	it := &interp{
		reg:   reg,
		msg:   msg,
		acc:   acc,
		cfg:   cfg,
		block: main,
		r:     bytes.NewReader(main),
		vars:  make(map[string]string),
		flags: make(map[string][]string),
	}
	if err := it.run(); err != nil {
		return nil, err
	}
	return it.acc, nil
}

// run drives the fetch/dispatch loop until an OpStop (or an implicit EOF,
// treated the same) is reached at the outermost script.
func (it *interp) run() error {
	for {
		if it.cfg.Cancelled != nil && it.cfg.Cancelled() {
			return sieveerr.New(sieveerr.KindTempFailure, "cancelled")
		}
		op, err := it.r.ReadByte()
		if err != nil {
			// Falling off the end of a block without a stop is only
			// valid for an included script (treated as an implicit
			// return); the main block always ends in OpStop (codegen
			// guarantees this).
			if len(it.includeStack) == 0 {
				return nil
			}
			it.popInclude()
			continue
		}
		stop, err := it.dispatch(op)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// dispatch executes one opcode, returning true if the whole run should
// stop (OpStop with no enclosing include frame).
func (it *interp) dispatch(op byte) (bool, error) {
	if binary.IsExtensionOpcode(op) {
		return false, it.dispatchExtension(binary.DecodeExtensionOpcode(op))
	}

	switch binary.Opcode(op) {
	case binary.OpStop:
		if len(it.includeStack) > 0 {
			it.popInclude()
			return false, nil
		}
		return true, nil
	case binary.OpJmp:
		return false, it.jump()
	case binary.OpJmpTrue:
		return false, it.condJump(it.testResult)
	case binary.OpJmpFalse:
		return false, it.condJump(!it.testResult)
	case binary.OpTestTrue:
		it.testResult = true
		return false, nil
	case binary.OpTestFalse:
		it.testResult = false
		return false, nil
	case binary.OpTestExists:
		return false, it.execExists()
	case binary.OpTestHeader:
		return false, it.execHeader()
	case binary.OpTestAddress:
		return false, it.execAddress()
	case binary.OpTestEnvelope:
		return false, it.execEnvelope()
	case binary.OpTestSizeOver:
		return false, it.execSize(true)
	case binary.OpTestSizeUnder:
		return false, it.execSize(false)
	case binary.OpKeep:
		return false, it.execKeep()
	case binary.OpDiscard:
		return false, it.acc.Add("discard", "", nil, nil)
	case binary.OpRedirect:
		return false, it.execRedirect()
	case binary.OpInclude:
		return false, it.execInclude()
	case binary.OpReturn:
		it.popInclude()
		return false, nil
	default:
		return false, sieveerr.New(sieveerr.KindBinCorrupt, fmt.Sprintf("unknown core opcode %d", op))
	}
}

func (it *interp) dispatchExtension(extensionID int) error {
	ext, ok := it.reg.ExtensionByID(extensionID)
	if !ok {
		return sieveerr.New(sieveerr.KindBinCorrupt, fmt.Sprintf("unknown extension id %d", extensionID))
	}
	subcode, err := it.ReadUvarint()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading extension subcode", err)
	}

	if def, ok := it.commandBySubcode(ext, subcode); ok {
		if def.Execute == nil {
			return sieveerr.New(sieveerr.KindBinCorrupt, fmt.Sprintf("command %q has no Execute hook", def.Name))
		}
		return def.Execute(it)
	}
	if def, ok := it.testBySubcode(ext, subcode); ok {
		if def.Execute == nil {
			return sieveerr.New(sieveerr.KindBinCorrupt, fmt.Sprintf("test %q has no Execute hook", def.Name))
		}
		v, err := def.Execute(it)
		if err != nil {
			return err
		}
		it.testResult = v
		return nil
	}
	return sieveerr.New(sieveerr.KindBinCorrupt, fmt.Sprintf("extension %q has no op with subcode %d", ext.Name, subcode))
}

// commandBySubcode/testBySubcode linearly scan the extension's registered
// names for a matching SubCode; extensions register a handful of ops
// each, so this trades a small linear scan for not needing a second
// subcode-keyed index in Registry.
func (it *interp) commandBySubcode(ext *registry.Extension, subcode uint64) (*registry.CommandDef, bool) {
	for _, name := range it.reg.CommandNames() {
		def, ok := it.reg.Command(name)
		if ok && def.ExtensionID == ext.ID && def.SubCode == subcode {
			return def, true
		}
	}
	return nil, false
}

func (it *interp) testBySubcode(ext *registry.Extension, subcode uint64) (*registry.TestDef, bool) {
	for _, name := range it.reg.TestNames() {
		def, ok := it.reg.Test(name)
		if ok && def.ExtensionID == ext.ID && def.SubCode == subcode {
			return def, true
		}
	}
	return nil, false
}

func (it *interp) jump() error {
	delta, err := it.ReadOffset()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading jump offset", err)
	}
	return it.seekRelative(delta)
}

func (it *interp) condJump(taken bool) error {
	delta, err := it.ReadOffset()
	if err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "reading jump offset", err)
	}
	if !taken {
		return nil
	}
	return it.seekRelative(delta)
}

// seekRelative moves the cursor by delta bytes relative to the current
// position (the byte immediately following the offset's own encoding),
// rejecting any target outside the current block (spec.md §4.8 "Any
// attempt to jump outside the current block is bin_corrupt").
func (it *interp) seekRelative(delta int64) error {
	cur := int64(it.r.Size()) - int64(it.r.Len())
	target := cur + delta
	if target < 0 || target > int64(len(it.block)) {
		return sieveerr.New(sieveerr.KindBinCorrupt, "jump target outside block")
	}
	if _, err := it.r.Seek(target, 0); err != nil {
		return sieveerr.Wrap(sieveerr.KindBinCorrupt, "seeking jump target", err)
	}
	return nil
}

func (it *interp) pushInclude(block []byte) {
	it.includeStack = append(it.includeStack, frame{r: it.r, block: it.block})
	it.block = block
	it.r = bytes.NewReader(block)
}

func (it *interp) popInclude() {
	if len(it.includeStack) == 0 {
		return
	}
	top := it.includeStack[len(it.includeStack)-1]
	it.includeStack = it.includeStack[:len(it.includeStack)-1]
	it.r = top.r
	it.block = top.block
}
