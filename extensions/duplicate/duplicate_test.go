package duplicate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/codegen"
	"github.com/dovesieve/sieve/extensions/duplicate"
	"github.com/dovesieve/sieve/extensions/fileinto"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/interpreter"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func run(t *testing.T, source string, msg *message.Static, tracker interpreter.DuplicateTracker) []string {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "parse errors: %v", buf.Diagnostics())

	reg := registry.New()
	require.NoError(t, reg.RegisterExtension(fileinto.Extension))
	require.NoError(t, reg.RegisterExtension(duplicate.Extension))

	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate(), "validate errors: %v", buf.Diagnostics())

	bin, err := codegen.Generate(tree, reg, sink)
	require.NoError(t, err)

	acc, err := interpreter.Run(bin, reg, msg, interpreter.Config{Duplicates: tracker})
	require.NoError(t, err)
	return acc.Dump()
}

func TestDuplicateFirstSightingIsNotDuplicate(t *testing.T) {
	tracker := interpreter.NewMemoryDuplicateTracker()
	msg := message.NewStatic(map[string][]string{"Message-ID": {"<abc@example.com>"}}, "", "", "")
	source := `
require ["duplicate", "fileinto"];
if duplicate {
    fileinto "Dup";
} else {
    fileinto "Inbox";
}
`
	lines := run(t, source, msg, tracker)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Inbox"}`, lines[0])
}

func TestDuplicateSecondSightingIsDuplicate(t *testing.T) {
	tracker := interpreter.NewMemoryDuplicateTracker()
	msg := message.NewStatic(map[string][]string{"Message-ID": {"<abc@example.com>"}}, "", "", "")
	source := `
require ["duplicate", "fileinto"];
if duplicate {
    fileinto "Dup";
} else {
    fileinto "Inbox";
}
`
	run(t, source, msg, tracker)
	lines := run(t, source, msg, tracker)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Dup"}`, lines[0])
}

func TestDuplicateUniqueIDOverridesMessageID(t *testing.T) {
	tracker := interpreter.NewMemoryDuplicateTracker()
	msg := message.NewStatic(map[string][]string{"Message-ID": {"<abc@example.com>"}}, "", "", "")
	source := `
require ["duplicate", "fileinto"];
if duplicate :uniqueid "order-42" {
    fileinto "Dup";
} else {
    fileinto "Inbox";
}
`
	run(t, source, msg, tracker)
	lines := run(t, source, msg, tracker)
	require.Len(t, lines, 1)
	assert.Equal(t, `fileinto{mailbox="Dup"}`, lines[0])
}
