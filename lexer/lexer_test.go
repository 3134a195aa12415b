package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/lexer"
)

func tokenize(t *testing.T, source string) ([]lexer.Token, *diag.BufferHandler) {
	t.Helper()
	buf := diag.NewBufferHandler()
	sink := diag.NewSink("test.sieve", 0, diag.NewRefHandler(buf))
	l := lexer.New(source, "test.sieve", sink)
	var toks []lexer.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == lexer.EOF {
			break
		}
	}
	return toks, buf
}

func types(toks []lexer.Token) []lexer.TokenType {
	out := make([]lexer.TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestKeepStatement(t *testing.T) {
	toks, buf := tokenize(t, `keep;`)
	require.Empty(t, buf.Diagnostics())
	assert.Equal(t, []lexer.TokenType{lexer.IDENTIFIER, lexer.SEMICOLON, lexer.EOF}, types(toks))
	assert.Equal(t, "keep", toks[0].Text)
}

func TestTagToken(t *testing.T) {
	toks, buf := tokenize(t, `:contains`)
	require.Empty(t, buf.Diagnostics())
	require.Equal(t, lexer.TAG, toks[0].Type)
	assert.Equal(t, "contains", toks[0].Text)
}

func TestNumberSuffixes(t *testing.T) {
	toks, buf := tokenize(t, `1 1K 2M 3G`)
	require.Empty(t, buf.Diagnostics())
	require.Len(t, toks, 5) // 4 numbers + EOF
	assert.Equal(t, uint64(1), toks[0].Number)
	assert.Equal(t, uint64(1024), toks[1].Number)
	assert.Equal(t, uint64(2*1024*1024), toks[2].Number)
	assert.Equal(t, uint64(3*1024*1024*1024), toks[3].Number)
}

func TestStringEscapes(t *testing.T) {
	toks, buf := tokenize(t, `"he said \"hi\" and a \\ backslash"`)
	require.Empty(t, buf.Diagnostics())
	require.Equal(t, lexer.STRING, toks[0].Type)
	assert.Equal(t, `he said "hi" and a \ backslash`, toks[0].Text)
}

func TestUnterminatedStringReportsError(t *testing.T) {
	_, buf := tokenize(t, `"unterminated`)
	require.NotEmpty(t, buf.Diagnostics())
}

func TestMultilineLiteralUnstuffsDots(t *testing.T) {
	toks, buf := tokenize(t, "text:\nfirst line\n..stuffed\nlast line\n.\n")
	require.Empty(t, buf.Diagnostics())
	require.Equal(t, lexer.MULTILINE, toks[0].Type)
	assert.Equal(t, "first line\n.stuffed\nlast line", toks[0].Text)
}

func TestLineCommentSkipped(t *testing.T) {
	toks, buf := tokenize(t, "keep; # trailing comment\nstop;")
	require.Empty(t, buf.Diagnostics())
	assert.Equal(t, []lexer.TokenType{
		lexer.IDENTIFIER, lexer.SEMICOLON, lexer.IDENTIFIER, lexer.SEMICOLON, lexer.EOF,
	}, types(toks))
}

func TestBlockCommentSkipped(t *testing.T) {
	toks, buf := tokenize(t, "keep /* inline */ ;")
	require.Empty(t, buf.Diagnostics())
	assert.Equal(t, []lexer.TokenType{lexer.IDENTIFIER, lexer.SEMICOLON, lexer.EOF}, types(toks))
}

func TestUnterminatedBlockCommentReportsError(t *testing.T) {
	_, buf := tokenize(t, "keep; /* never closed")
	require.NotEmpty(t, buf.Diagnostics())
}

func TestBracketsAndComma(t *testing.T) {
	toks, buf := tokenize(t, `["a", "b"]`)
	require.Empty(t, buf.Diagnostics())
	assert.Equal(t, []lexer.TokenType{
		lexer.LSQUARE, lexer.STRING, lexer.COMMA, lexer.STRING, lexer.RSQUARE, lexer.EOF,
	}, types(toks))
}

func TestIllegalCharacterReportsErrorAndContinues(t *testing.T) {
	toks, buf := tokenize(t, "keep; @ stop;")
	require.NotEmpty(t, buf.Diagnostics())
	assert.Contains(t, types(toks), lexer.ILLEGAL)
	assert.Contains(t, types(toks), lexer.SEMICOLON)
}

func TestResyncToStatementBoundarySkipsToSemicolon(t *testing.T) {
	l := lexer.New(`garbage tokens here ; keep;`, "test.sieve", nil)
	tok := l.ResyncToStatementBoundary()
	assert.Equal(t, lexer.SEMICOLON, tok.Type)
	next := l.Next()
	assert.Equal(t, lexer.IDENTIFIER, next.Type)
	assert.Equal(t, "keep", next.Text)
}
