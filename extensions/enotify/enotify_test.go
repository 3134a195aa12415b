package enotify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/enotify"
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
	require.NoError(t, reg.RegisterExtension(enotify.Extension))
	require.NoError(t, reg.RegisterExtension(enotify.AliasExtension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, message.NewStatic(nil, "", "", ""), interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestNotifyEmitsAction(t *testing.T) {
	lines := run(t, `
require "enotify";
notify :message "new mail" "mailto:ops@example.com";
`)
	require.Len(t, lines, 2)
	assert.Equal(t, `notify{method="mailto:ops@example.com"}`, lines[0])
	assert.Equal(t, "keep", lines[1])
}

func TestValidNotifyMethodRecognisesMailto(t *testing.T) {
	lines := run(t, `
require "enotify";
if valid_notify_method "mailto:ops@example.com" {
    discard;
}
`)
	require.Len(t, lines, 1)
	assert.Equal(t, "discard", lines[0])
}

func TestValidNotifyMethodRejectsUnknownScheme(t *testing.T) {
	lines := run(t, `
require "enotify";
if valid_notify_method "carrier-pigeon:loft" {
    discard;
}
`)
	require.Len(t, lines, 1)
	assert.Equal(t, "keep", lines[0])
}

func TestNotifyMethodCapabilityMessage(t *testing.T) {
	lines := run(t, `
require "enotify";
if notify_method_capability "mailto:ops@example.com" "message" "yes" {
    discard;
}
`)
	require.Len(t, lines, 1)
	assert.Equal(t, "discard", lines[0])
}

func TestRequiringBothNamesIsValidateError(t *testing.T) {
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(`require ["enotify", "notify"]; keep;`, "test.sieve", sink)
	require.True(t, sink.OK())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(enotify.Extension))
	require.NoError(t, reg.RegisterExtension(enotify.AliasExtension))

	v := validator.New(tree, reg, sink)
	assert.False(t, v.Validate())
}
