package subaddress_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/envelope"
	"github.com/dovesieve/sieve/extensions/fileinto"
	"github.com/dovesieve/sieve/extensions/subaddress"
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
	require.NoError(t, reg.RegisterExtension(envelope.Extension))
	require.NoError(t, reg.RegisterExtension(fileinto.Extension))
	require.NoError(t, reg.RegisterExtension(subaddress.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{})
	require.NoError(t, err)
	return acc.Dump()
}

func TestAddressUserPartMatchesAccount(t *testing.T) {
	source := `
require ["subaddress", "fileinto"];
if address :user :is "to" "user" {
    fileinto "Account";
}
`
	msg := message.NewStatic(map[string][]string{"To": {"user+news@example.com"}}, "", "user+news@example.com", "")
	lines := run(t, source, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Account"}`, lines[0])
}

func TestAddressDetailPartMatchesSuffix(t *testing.T) {
	source := `
require ["subaddress", "fileinto"];
if address :detail :is "to" "news" {
    fileinto "News";
}
`
	msg := message.NewStatic(map[string][]string{"To": {"user+news@example.com"}}, "", "user+news@example.com", "")
	lines := run(t, source, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="News"}`, lines[0])
}

func TestAddressDetailPartEmptyWhenNoPlus(t *testing.T) {
	source := `
require ["subaddress", "fileinto"];
if address :detail :is "to" "" {
    fileinto "NoDetail";
}
`
	msg := message.NewStatic(map[string][]string{"To": {"user@example.com"}}, "", "user@example.com", "")
	lines := run(t, source, msg)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="NoDetail"}`, lines[0])
}
