package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/parser"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/validator"
)

func mustValidate(t *testing.T, source string, opts ...validator.Option) (*diag.BufferHandler, bool) {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(source, "test.sieve", sink)
	require.True(t, sink.OK(), "unexpected parse errors")

	reg := registry.New()
	v := validator.New(tree, reg, sink, opts...)
	return buf, v.Validate()
}

func TestValidCoreScript(t *testing.T) {
	_, ok := mustValidate(t, `
		if header :contains "Subject" "sale" {
			discard;
		} elsif size :over 1M {
			stop;
		} else {
			keep;
		}
	`)
	assert.True(t, ok)
}

func TestUnknownCommandReportsFuzzySuggestion(t *testing.T) {
	buf, ok := mustValidate(t, `kep;`)
	assert.False(t, ok)
	require.Len(t, buf.Diagnostics(), 1)
	assert.Contains(t, buf.Diagnostics()[0].Message, "unknown command")
	assert.Contains(t, buf.Diagnostics()[0].Message, "keep")
}

func TestUnknownTestReportsError(t *testing.T) {
	_, ok := mustValidate(t, `if nosuchtest { stop; }`)
	assert.False(t, ok)
}

func TestElsifMustFollowIf(t *testing.T) {
	_, ok := mustValidate(t, `
		stop;
		elsif true { stop; }
	`)
	assert.False(t, ok)
}

func TestElseMustFollowIfOrElsif(t *testing.T) {
	_, ok := mustValidate(t, `
		stop;
		else { stop; }
	`)
	assert.False(t, ok)
}

func TestRequireMustPrecedeOtherCommands(t *testing.T) {
	_, ok := mustValidate(t, `
		stop;
		require "fileinto";
	`)
	assert.False(t, ok)
}

func TestRequireOnUnknownExtensionErrors(t *testing.T) {
	_, ok := mustValidate(t, `require "nosuchextension";`)
	assert.False(t, ok)
}

func TestReturnOutsideIncludedScriptErrors(t *testing.T) {
	_, ok := mustValidate(t, `return;`)
	assert.False(t, ok)
}

func TestReturnAllowedWhenIncluded(t *testing.T) {
	_, ok := mustValidate(t, `return;`, validator.WithIncluded(true))
	assert.True(t, ok)
}

func TestSizeRequiresExactlyOneOfOverUnder(t *testing.T) {
	_, ok := mustValidate(t, `if size :over 1M :under 2M { stop; }`)
	assert.False(t, ok)

	_, ok = mustValidate(t, `if size { stop; }`)
	assert.False(t, ok)

	_, ok = mustValidate(t, `if size :over 1M { stop; }`)
	assert.True(t, ok)
}

func TestAnyofAllofRequireAtLeastOneSubtest(t *testing.T) {
	_, ok := mustValidate(t, `if anyof () { stop; }`)
	assert.False(t, ok)

	_, ok = mustValidate(t, `if anyof (true, false) { stop; }`)
	assert.True(t, ok)
}

func TestHeaderTestDefaultsToIsAndAsciiCasemap(t *testing.T) {
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(`if header "Subject" "hello" { stop; }`, "test.sieve", sink)
	require.True(t, sink.OK())

	reg := registry.New()
	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate())

	ifCmd := tree.Arena.Node(tree.Root[0]).(*ast.Command)
	require.Len(t, ifCmd.Tests, 1)

	ctx, ok := v.MatchContext(ifCmd.Tests[0])
	require.True(t, ok)
	assert.Equal(t, "is", ctx.Type.Name)
	assert.Equal(t, "i;ascii-casemap", ctx.Comparator.Name)
}

func TestAddressTestDefaultsToAllAddressPart(t *testing.T) {
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	tree := parser.Parse(`if address "From" "user@example.com" { stop; }`, "test.sieve", sink)
	require.True(t, sink.OK())

	reg := registry.New()
	v := validator.New(tree, reg, sink)
	require.True(t, v.Validate())

	ifCmd := tree.Arena.Node(tree.Root[0]).(*ast.Command)
	part, ok := v.AddressPart(ifCmd.Tests[0])
	require.True(t, ok)
	assert.Equal(t, "all", part.Name)
}
