package interpreter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func run(t *testing.T, source string, msg message.Message) []string {
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

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestDiscardScriptYieldsOnlyDiscard(t *testing.T) {
	msg := message.NewStatic(map[string][]string{"Subject": {"Summer sale"}}, "a@example.com", "b@example.com", "body")
	actions := run(t, `if header :contains "Subject" "sale" { discard; }`, msg)
	assert.Equal(t, []string{"discard"}, actions)
}

func TestNonMatchingScriptFallsBackToImplicitKeep(t *testing.T) {
	msg := message.NewStatic(map[string][]string{"Subject": {"hello"}}, "a@example.com", "b@example.com", "body")
	actions := run(t, `if header :contains "Subject" "sale" { discard; }`, msg)
	assert.Equal(t, []string{"keep"}, actions)
}

func TestSizeOverTestGatesDiscard(t *testing.T) {
	msg := message.NewStatic(nil, "a@example.com", "b@example.com", string(make([]byte, 2_000_000)))
	actions := run(t, `if size :over 1M { discard; }`, msg)
	assert.Equal(t, []string{"discard"}, actions)
}

func TestAnyofShortCircuitEvaluatesCorrectlyWhenFirstSubtestMatches(t *testing.T) {
	msg := message.NewStatic(map[string][]string{"X-Spam": {"yes"}}, "", "", "tiny")
	actions := run(t, `
		if anyof (header :is "X-Spam" "yes", size :over 1M) {
			discard;
		}
	`, msg)
	assert.Equal(t, []string{"discard"}, actions)
}

func TestElsifChainTakesSecondArmWhenFirstFails(t *testing.T) {
	msg := message.NewStatic(map[string][]string{"Subject": {"invoice"}}, "", "", "body")
	actions := run(t, `
		if header :is "Subject" "sale" {
			discard;
		} elsif header :contains "Subject" "invoice" {
			redirect "billing@example.com";
		} else {
			keep;
		}
	`, msg)
	assert.Equal(t, []string{"redirect"}, actions)
}

func TestRedirectAddressAppearsInActionDetail(t *testing.T) {
	msg := message.NewStatic(nil, "", "", "body")
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(`redirect "a@example.com";`, "test.sieve", sink)
	require.True(t, sink.OK())
	reg := registry.New()
	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate())
	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	actions := acc.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "a@example.com", actions[0].Detail["address"])
}
