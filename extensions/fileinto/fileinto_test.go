package fileinto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/fileinto"
	"github.com/dovesieve/sieve/extensions/imap4flags"
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
	require.NoError(t, reg.RegisterExtension(fileinto.Extension))
	require.NoError(t, reg.RegisterExtension(imap4flags.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestFileintoWithAmbientFlagsFromAddflag(t *testing.T) {
	source := `
require ["fileinto", "imap4flags"];
if header :contains "Subject" "sale" {
    addflag "\\Seen";
    fileinto "Junk";
    stop;
}
`
	msg := message.NewStatic(map[string][]string{"Subject": {"Summer sale"}}, "", "", "")
	lines := run(t, source, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Junk", flags=[\Seen]}`, lines[0])
}

func TestFileintoWithoutMatchFallsBackToImplicitKeep(t *testing.T) {
	source := `
require ["fileinto", "imap4flags"];
if header :contains "Subject" "sale" {
    fileinto "Junk";
}
`
	msg := message.NewStatic(map[string][]string{"Subject": {"hello"}}, "", "", "")
	lines := run(t, source, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, "keep", lines[0])
}

func TestTwoFileintoSameFolderDedupsAndMergesFlags(t *testing.T) {
	source := `
require ["fileinto", "imap4flags"];
addflag "\\Seen";
fileinto "Junk";
fileinto :flags "\\Deleted" "Junk";
`
	lines := run(t, source, message.NewStatic(nil, "", "", ""))
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Junk", flags=[\Seen \Deleted]}`, lines[0])
}
