// Package sieve ties the module's pipeline packages — lexer, parser,
// validator, codegen, binary, interpreter, result — into the single
// entry point a host embeds: compile a script's source into a binary,
// then run that binary against a message to get a pending result.
//
// An Instance owns one registry.Registry (the extension/object set every
// compile and run shares) and the ambient configuration spec.md §5
// describes as per-Runtime-Environment: include limits, a deadline, a
// logger, and the vacation extension's duplicate tracker.
package sieve

import (
	"context"
	"log/slog"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/body"
	"github.com/dovesieve/sieve/extensions/duplicate"
	"github.com/dovesieve/sieve/extensions/editheader"
	"github.com/dovesieve/sieve/extensions/enotify"
	"github.com/dovesieve/sieve/extensions/envelope"
	"github.com/dovesieve/sieve/extensions/fileinto"
	"github.com/dovesieve/sieve/extensions/imap4flags"
	"github.com/dovesieve/sieve/extensions/reject"
	"github.com/dovesieve/sieve/extensions/relational"
	"github.com/dovesieve/sieve/extensions/subaddress"
	"github.com/dovesieve/sieve/extensions/vacation"
	"github.com/dovesieve/sieve/extensions/variables"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/result"
	"github.com/dovesieve/sieve/sieveerr"
	"github.com/dovesieve/sieve/validator"
)

// DefaultExtensions is every extension this module ships, in the order an
// Instance registers them when no WithExtensions option overrides it.
// imap4flags/fileinto register before imap4flags attaches ":flags" to
// "keep" so the tag shape exists once, not twice; order otherwise doesn't
// matter since registry.RegisterExtension only ever adds to shared
// tables.
func DefaultExtensions() []*registry.Extension {
	return []*registry.Extension{
		envelope.Extension,
		fileinto.Extension,
		imap4flags.Extension,
		imap4flags.AliasExtension,
		variables.Extension,
		relational.Extension,
		subaddress.Extension,
		body.Extension,
		vacation.Extension,
		enotify.Extension,
		enotify.AliasExtension,
		reject.Extension,
		editheader.Extension,
		duplicate.Extension,
	}
}

// Instance is one configured Sieve engine: a registry plus the ambient
// limits every Compile/Run call through it shares.
type Instance struct {
	reg    *registry.Registry
	cfg    Config
	logger *slog.Logger
}

// New builds an Instance, registering DefaultExtensions (or whatever
// WithExtensions supplied) against a fresh registry.Registry.
func New(opts ...Option) (*Instance, error) {
	cfg := newConfig(opts)
	reg := registry.New()
	for _, ext := range cfg.extensions {
		if err := reg.RegisterExtension(ext); err != nil {
			return nil, sieveerr.Wrap(sieveerr.KindInternal, "registering extension "+ext.Name, err)
		}
	}
	return &Instance{reg: reg, cfg: cfg, logger: cfg.logger}, nil
}

// Registry exposes the Instance's registry.Registry, for hosts that need
// to introspect the extension set (e.g. listing supported capability
// strings for a "MANAGESIEVE" style greeting).
func (in *Instance) Registry() *registry.Registry { return in.reg }

// CompileResult is everything one Compile call produces: the compiled
// binary (nil if compilation failed) and every diagnostic emitted along
// the way, parse warnings included.
type CompileResult struct {
	Binary      *binary.Binary
	Diagnostics []diag.Diagnostic
}

// Compile runs the full lex → parse → validate → codegen pipeline over
// source (spec.md §4.1-4.7), returning a *sieveerr.Error of KindParse or
// KindValidate on the first stage that fails. A successful compile past
// codegen cannot itself fail except for an internal programmer error
// (codegen.Generate only reports diagnostics for conditions the validator
// should already have caught).
func (in *Instance) Compile(source, filename string) (*CompileResult, error) {
	in.logger.Debug("compile starting", slog.String("script", filename))
	maxErrors := in.cfg.maxErrors
	buf := diag.NewBufferHandler()
	sink := diag.NewSink(filename, maxErrors, diag.NewRefHandler(buf))

	tree := parser.Parse(source, filename, sink)
	if !sink.OK() {
		in.logger.Warn("compile failed during parse", slog.String("script", filename), slog.Int("errors", sink.ErrorCount()))
		return &CompileResult{Diagnostics: buf.Diagnostics()},
			sieveerr.New(sieveerr.KindParse, "compile failed").With("errors", sink.ErrorCount())
	}

	v := validator.New(tree, in.reg, sink)
	if !v.Validate() {
		in.logger.Warn("compile failed during validate", slog.String("script", filename), slog.Int("errors", sink.ErrorCount()))
		return &CompileResult{Diagnostics: buf.Diagnostics()},
			sieveerr.New(sieveerr.KindValidate, "compile failed").With("errors", sink.ErrorCount())
	}

	bin, err := codegen.Generate(tree, in.reg, sink)
	if err != nil {
		in.logger.Error("code generation failed", slog.String("script", filename), slog.Any("error", err))
		return &CompileResult{Diagnostics: buf.Diagnostics()},
			sieveerr.Wrap(sieveerr.KindInternal, "code generation failed", err)
	}
	in.logger.Debug("compile succeeded", slog.String("script", filename))
	return &CompileResult{Binary: bin, Diagnostics: buf.Diagnostics()}, nil
}

// ValidateOnly runs lex → parse → validate without generating code, for a
// host's "sievec test" / "CHECKSCRIPT" style dry-run.
func (in *Instance) ValidateOnly(source, filename string) ([]diag.Diagnostic, bool) {
	in.logger.Debug("validate-only starting", slog.String("script", filename))
	buf := diag.NewBufferHandler()
	sink := diag.NewSink(filename, in.cfg.maxErrors, diag.NewRefHandler(buf))
	tree := parser.Parse(source, filename, sink)
	if sink.OK() {
		v := validator.New(tree, in.reg, sink)
		v.Validate()
	}
	ok := sink.OK()
	if !ok {
		in.logger.Warn("validate-only found errors", slog.String("script", filename), slog.Int("errors", sink.ErrorCount()))
	}
	return buf.Diagnostics(), ok
}

// Run executes bin against msg, returning the pending result.Accumulator
// (call Commit on it to apply side effects against the host). resolve
// services any "include" commands in bin; nil means a non-optional
// "include" fails bin_corrupt and an :optional one is skipped.
func (in *Instance) Run(ctx context.Context, bin *binary.Binary, msg message.Message, resolve interpreter.IncludeResolver) (*result.Accumulator, error) {
	in.logger.Debug("run starting")
	icfg := interpreter.Config{
		MaxIncludeDepth: in.cfg.maxIncludeDepth,
		MaxIncludeCount: in.cfg.maxIncludeCount,
		Resolve:         resolve,
		Duplicates:      in.cfg.duplicates,
	}
	if in.cfg.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.deadline)
		defer cancel()
	}
	icfg.Cancelled = func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
	acc, err := interpreter.Run(bin, in.reg, msg, icfg)
	if err != nil {
		in.logger.Error("run failed", slog.Any("error", err))
		return acc, err
	}
	in.logger.Debug("run finished")
	return acc, nil
}

// ParseOnly exposes the AST for callers (primarily the CLI's "dump"
// subcommand) that need to inspect the parsed tree directly rather than
// just a compiled binary. The caller owns the sink, the same as Compile's
// other stages.
func ParseOnly(source, filename string, sink *diag.Sink) *ast.AST {
	return parser.Parse(source, filename, sink)
}
