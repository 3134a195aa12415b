package variables_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/envelope"
	"github.com/dovesieve/sieve/extensions/fileinto"
	"github.com/dovesieve/sieve/extensions/variables"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func run(t *testing.T, source string, msg *message.Static) []string {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "parse errors: %v", buf.Diagnostics())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(fileinto.Extension))
	require.NoError(t, reg.RegisterExtension(envelope.Extension))
	require.NoError(t, reg.RegisterExtension(variables.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestEnvelopeMatchesCapturesFeedFileintoSubstitution(t *testing.T) {
	source := `
require ["envelope", "variables", "fileinto"];
if envelope :matches "to" "*+*@example.com" {
    fileinto "Sub/${1}/${2}";
}
`
	msg := message.NewStatic(nil, "", "user+news@example.com", "")
	lines := run(t, source, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Sub/user/news"}`, lines[0])
}

func TestSetWithUpperModifier(t *testing.T) {
	source := `
require ["variables", "fileinto"];
set :upper "folder" "inbox";
fileinto "${folder}";
`
	lines := run(t, source, message.NewStatic(nil, "", "", ""))
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="INBOX"}`, lines[0])
}

func TestSetWithLengthModifier(t *testing.T) {
	source := `
require ["variables", "fileinto"];
set :length "len" "hello";
fileinto "${len}";
`
	lines := run(t, source, message.NewStatic(nil, "", "", ""))
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="5"}`, lines[0])
}

func TestStringTestMatchesSubstitutedSource(t *testing.T) {
	source := `
require ["variables", "fileinto"];
set "folder" "Archive";
if string :is "${folder}" "Archive" {
    fileinto "Archive";
}
`
	lines := run(t, source, message.NewStatic(nil, "", "", ""))
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Archive"}`, lines[0])
}

func TestStringTestNoMatchFallsThrough(t *testing.T) {
	source := `
require ["variables", "fileinto"];
set "folder" "Inbox";
if string :is "${folder}" "Archive" {
    fileinto "Archive";
} else {
    fileinto "Inbox";
}
`
	lines := run(t, source, message.NewStatic(nil, "", "", ""))
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Inbox"}`, lines[0])
}
