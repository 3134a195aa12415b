package codegen_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func compile(t *testing.T, source string) *binary.Binary {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "parse errors: %v", buf.Diagnostics())

	reg := registry.New()
	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)
	return bin
}

func TestStopCompilesToSingleOpcode(t *testing.T) {
	bin := compile(t, `stop;`)
	main := bin.MainBlock()
	require.NotEmpty(t, main)
	assert.Equal(t, byte(binary.OpStop), main[0])
}

func TestIfElseCompilesToJumpGraph(t *testing.T) {
	bin := compile(t, `
		if header :contains "Subject" "sale" {
			discard;
		} else {
			keep;
		}
	`)
	main := bin.MainBlock()
	require.NotEmpty(t, main)
	assert.Equal(t, byte(binary.OpTestHeader), main[0])

	containsJmpFalse := false
	for _, b := range main {
		if b == byte(binary.OpJmpFalse) {
			containsJmpFalse = true
		}
	}
	assert.True(t, containsJmpFalse)
}

func TestAnyofShortCircuitsToSharedTarget(t *testing.T) {
	// :contains rather than :is: the raw byte scan below would also count
	// the length prefix of the two-byte "is" string, which equals OpJmpTrue.
	bin := compile(t, `
		if anyof (header :contains "X-Spam" "yes", size :over 1M) {
			discard;
		}
	`)
	main := bin.MainBlock()

	jumpTrueCount := 0
	for _, b := range main {
		if b == byte(binary.OpJmpTrue) {
			jumpTrueCount++
		}
	}
	assert.Equal(t, 2, jumpTrueCount, "each anyof subtest jumps true to the shared body target")
}

func TestSaveLoadRoundTripOfCompiledBinary(t *testing.T) {
	bin := compile(t, `if true { stop; }`)
	var out bytes.Buffer
	require.NoError(t, binary.Save(&out, bin))

	loaded, err := binary.Load(&out)
	require.NoError(t, err)
	assert.Equal(t, bin.MainBlock(), loaded.MainBlock())
}

func TestRequiredExtensionsAppearInExtensionTable(t *testing.T) {
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(`require "vacation"; stop;`, "test.sieve", sink)
	require.True(t, sink.OK())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(&registry.Extension{
		Name:    "vacation",
		Version: "1.0.0",
		Load:    func(r *registry.Registry) error { return nil },
	}))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)
	require.Len(t, bin.Extensions, 1)
	assert.Equal(t, "vacation", bin.Extensions[0].Name)
}
