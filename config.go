package sieve

import (
	"log/slog"
	"time"

	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/registry"
)

// Config is an Instance's construction-time configuration, built up via
// functional Options (the same shape validator.Option/Validator use
// elsewhere in this module).
type Config struct {
	extensions []*registry.Extension
	logger     *slog.Logger

	maxErrors       int
	maxIncludeDepth int
	maxIncludeCount int
	deadline        time.Duration
	duplicates      interpreter.DuplicateTracker
}

// Option configures an Instance at construction time.
type Option func(*Config)

// WithExtensions replaces the default extension set (DefaultExtensions)
// with exactly the extensions given, in registration order. Pass this
// when a host wants a narrower or custom extension surface than the
// module's default.
func WithExtensions(exts ...*registry.Extension) Option {
	return func(c *Config) { c.extensions = append([]*registry.Extension{}, exts...) }
}

// WithLogger sets the *slog.Logger an Instance and the components it owns
// log through; the zero value is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithMaxErrors bounds how many errors a single compile reports (spec.md
// §4.1's per-compile error ceiling); errors past the ceiling still count
// and still fail the compile but reach no handler, and the walk goes on.
// 0 means no ceiling.
func WithMaxErrors(n int) Option {
	return func(c *Config) { c.maxErrors = n }
}

// WithMaxIncludeDepth bounds nested "include" depth (spec.md §5); 0 means
// the interpreter package's own default.
func WithMaxIncludeDepth(n int) Option {
	return func(c *Config) { c.maxIncludeDepth = n }
}

// WithMaxIncludeCount bounds the total number of scripts included over a
// run, independent of nesting depth; 0 means the interpreter package's
// own default.
func WithMaxIncludeCount(n int) Option {
	return func(c *Config) { c.maxIncludeCount = n }
}

// WithDeadline bounds one Run call's wall-clock execution time (spec.md §5
// "Execution deadline"); zero means no deadline.
func WithDeadline(d time.Duration) Option {
	return func(c *Config) { c.deadline = d }
}

// WithDuplicateTracker backs the vacation extension's ":handle" dedup
// (spec.md §8 Scenario B) with persistent state across Run calls; nil (the
// default) means no key is ever considered a duplicate.
func WithDuplicateTracker(t interpreter.DuplicateTracker) Option {
	return func(c *Config) { c.duplicates = t }
}

func newConfig(opts []Option) Config {
	c := Config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.extensions == nil {
		c.extensions = DefaultExtensions()
	}
	return c
}
