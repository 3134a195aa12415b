package reject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/reject"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func run(t *testing.T, source string) []string {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "parse errors: %v", buf.Diagnostics())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(reject.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, message.NewStatic(nil, "", "", ""), interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestRejectCancelsImplicitKeep(t *testing.T) {
	lines := run(t, `require "reject"; reject "I don't want this mail.";`)
	require.Len(t, lines, 1)
	assert.Equal(t, `reject{reason="I don't want this mail."}`, lines[0])
}

func TestErejectCancelsImplicitKeep(t *testing.T) {
	lines := run(t, `require "reject"; ereject "spam.";`)
	require.Len(t, lines, 1)
	assert.Equal(t, `ereject{reason="spam."}`, lines[0])
}
