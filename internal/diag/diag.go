// Package diag implements the compile-time diagnostics sink described in
// spec.md §4.1: severity-tagged messages with source locations, a
// per-compile error ceiling, and pluggable handlers.
package diag

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Severity is one of the six diagnostic levels spec.md §4.1 names.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
	Panic
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	case Panic:
		return "panic"
	default:
		return "unknown"
	}
}

// Location augments a diagnostic with a human-readable script position.
type Location struct {
	Line   int
	Column int
}

// Diagnostic is a single accumulated message.
type Diagnostic struct {
	Severity Severity
	Filename string
	Line     int
	Event    string // optional machine-readable event name, empty if unset
	Location *Location
	Message  string
}

// Script formats "<name>: line N", the helper named in spec.md §4.1.
func (d Diagnostic) Script() string {
	if d.Line <= 0 {
		return d.Filename
	}
	return fmt.Sprintf("%s: line %d", d.Filename, d.Line)
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Script())
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Handler receives diagnostics as they are emitted. Implementations must be
// safe for concurrent use only insofar as a single Sink is never shared
// across Runtime Environments (spec.md §5: single-threaded per Instance).
type Handler interface {
	Handle(Diagnostic)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Diagnostic)

func (f HandlerFunc) Handle(d Diagnostic) { f(d) }

// refHandler is a reference-counted wrapper, mirroring spec.md §4.1's
// "a handler has a reference count; unref frees when it reaches zero".
type refHandler struct {
	mu   sync.Mutex
	refs int
	h    Handler
}

// RefHandler is the reference-counted handle callers hold and pass around.
type RefHandler struct {
	inner *refHandler
}

// NewRefHandler wraps h with a reference count starting at one.
func NewRefHandler(h Handler) RefHandler {
	return RefHandler{inner: &refHandler{refs: 1, h: h}}
}

// Ref increments the reference count and returns the same logical handler.
func (r RefHandler) Ref() RefHandler {
	r.inner.mu.Lock()
	defer r.inner.mu.Unlock()
	r.inner.refs++
	return r
}

// Unref decrements the reference count; the underlying Handler is dropped
// (set to nil) once it reaches zero. Safe to call multiple times.
func (r RefHandler) Unref() {
	r.inner.mu.Lock()
	defer r.inner.mu.Unlock()
	if r.inner.refs == 0 {
		return
	}
	r.inner.refs--
	if r.inner.refs == 0 {
		r.inner.h = nil
	}
}

func (r RefHandler) handle(d Diagnostic) {
	r.inner.mu.Lock()
	h := r.inner.h
	r.inner.mu.Unlock()
	if h != nil {
		h.Handle(d)
	}
}

// BufferHandler accumulates diagnostics in memory, used by tests and by the
// CLI's "test"/"dump" subcommands.
type BufferHandler struct {
	mu   sync.Mutex
	logs []Diagnostic
}

func NewBufferHandler() *BufferHandler { return &BufferHandler{} }

func (b *BufferHandler) Handle(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, d)
}

func (b *BufferHandler) Diagnostics() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Diagnostic, len(b.logs))
	copy(out, b.logs)
	return out
}

// Sink accumulates diagnostics for a single compile, enforcing MaxErrors
// and fanning out to zero or more handlers. A Sink is never shared across
// Runtime Environments; it belongs to one compile (or one execution) only.
type Sink struct {
	mu       sync.Mutex
	Filename string
	MaxErrors int // 0 disables the ceiling

	handlers []RefHandler
	errors   int // total errors seen, including suppressed ones
	warnings int
}

// NewSink creates a diagnostics sink for filename, reporting to handlers.
func NewSink(filename string, maxErrors int, handlers ...RefHandler) *Sink {
	return &Sink{Filename: filename, MaxErrors: maxErrors, handlers: handlers}
}

// AddHandler attaches another handler, taking a reference on it.
func (s *Sink) AddHandler(h RefHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h.Ref())
}

func (s *Sink) emit(d Diagnostic) {
	s.mu.Lock()
	handlers := make([]RefHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h.handle(d)
	}
}

// report is the common path for every severity. It never panics: a Panic
// severity still just records and forwards the diagnostic, it does not
// invoke Go's panic().
func (s *Sink) report(sev Severity, line int, event, format string, args ...any) {
	s.mu.Lock()
	suppressed := sev == Error && s.MaxErrors > 0 && s.errors >= s.MaxErrors
	if sev == Error {
		s.errors++
	} else if sev == Warning {
		s.warnings++
	}
	s.mu.Unlock()

	if suppressed {
		return
	}

	s.emit(Diagnostic{
		Severity: sev,
		Filename: s.Filename,
		Line:     line,
		Event:    event,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (s *Sink) Debugf(line int, format string, args ...any)   { s.report(Debug, line, "", format, args...) }
func (s *Sink) Infof(line int, format string, args ...any)    { s.report(Info, line, "", format, args...) }
func (s *Sink) Warningf(line int, format string, args ...any) { s.report(Warning, line, "", format, args...) }
func (s *Sink) Errorf(line int, format string, args ...any)   { s.report(Error, line, "", format, args...) }
func (s *Sink) Fatalf(line int, format string, args ...any)   { s.report(Fatal, line, "", format, args...) }
func (s *Sink) Panicf(line int, format string, args ...any)   { s.report(Panic, line, "", format, args...) }

// EventErrorf reports an error carrying a machine-readable event name, used
// by the validator to tag e.g. "unknown-command" for tooling.
func (s *Sink) EventErrorf(line int, event, format string, args ...any) {
	s.report(Error, line, event, format, args...)
}

// ErrorCount returns the number of errors reported, including any
// suppressed once the ceiling was reached.
func (s *Sink) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

// WarningCount returns the number of warnings reported.
func (s *Sink) WarningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// OK reports whether the compile phase succeeded: zero errors.
func (s *Sink) OK() bool { return s.ErrorCount() == 0 }

// Suggest returns the closest matches to name among candidates, ranked by
// edit distance, for "unknown identifier, did you mean …" diagnostics.
// Returns at most 3 suggestions with rank <= 2 edits.
func Suggest(name string, candidates []string) []string {
	ranked := fuzzy.RankFindNormalizedFold(name, candidates)
	if len(ranked) == 0 {
		return nil
	}
	out := make([]string, 0, 3)
	for _, r := range ranked {
		if r.Distance > 2 {
			continue
		}
		out = append(out, r.Target)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// UnknownIdentifier formats the standard "unknown X %q" message, appending
// suggestions from Suggest when any are found.
func UnknownIdentifier(kind, name string, candidates []string) string {
	msg := fmt.Sprintf("unknown %s %q", kind, name)
	if sug := Suggest(name, candidates); len(sug) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(sug), " or "))
	}
	return msg
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
