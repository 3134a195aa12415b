package vacation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/vacation"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func compile(t *testing.T, source string) (*binary.Binary, *registry.Registry) {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "parse errors: %v", buf.Diagnostics())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(vacation.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)
	return bin, reg
}

// TestVacationDedupWithinPeriod is spec.md §8 Scenario B: the second
// execution of the same script with the same :handle against the same
// sender, within the vacation period, produces no vacation action, and
// the implicit keep still fires.
func TestVacationDedupWithinPeriod(t *testing.T) {
	bin, reg := compile(t, `
require "vacation";
vacation :handle "h1" "Away";
`)
	tracker := interpreter.NewMemoryDuplicateTracker()
	msg := message.NewStatic(nil, "sender@example.com", "", "")

	acc1, err := interpreter.Run(bin, reg, msg, interpreter.Config{Duplicates: tracker})
	require.NoError(t, err)
	lines1 := acc1.Dump()
	require.Len(t, lines1, 2)
	assert.Equal(t, `vacation{reason="Away"}`, lines1[0])
	assert.Equal(t, "keep", lines1[1])

	acc2, err := interpreter.Run(bin, reg, msg, interpreter.Config{Duplicates: tracker})
	require.NoError(t, err)
	lines2 := acc2.Dump()
	require.Len(t, lines2, 1)
	assert.Equal(t, "keep", lines2[0])
}

func TestVacationWithSubjectTag(t *testing.T) {
	bin, reg := compile(t, `
require "vacation";
vacation :subject "Out of office" :handle "h2" "I am away.";
`)
	msg := message.NewStatic(nil, "sender@example.com", "", "")
	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	lines := acc.Dump()
	require.Len(t, lines, 2)
	assert.Equal(t, `vacation{reason="I am away.", subject="Out of office"}`, lines[0])
}
