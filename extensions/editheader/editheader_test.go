package editheader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/editheader"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func compileAndRun(t *testing.T, source string, msg *message.Static) []string {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "parse errors: %v", buf.Diagnostics())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(editheader.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestAddHeaderThenMatchInSameRun(t *testing.T) {
	msg := message.NewStatic(nil, "", "", "")
	lines := compileAndRun(t, `
require "editheader";
addheader "X-Sieve-Filtered" "yes";
if header :contains "X-Sieve-Filtered" "yes" {
    discard;
}
`, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, "discard", lines[0])
}

func TestDeleteHeaderRemovesMatchingValue(t *testing.T) {
	msg := message.NewStatic(map[string][]string{"X-Spam": {"yes"}}, "", "", "")
	compileAndRun(t, `
require "editheader";
deleteheader "X-Spam" "yes";
`, msg)
	vals, err := msg.Header("X-Spam")
	require.NoError(t, err)
	assert.Empty(t, vals)
}
