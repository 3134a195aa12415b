package parser

import (
	"fmt"
	"strings"
)

// SyntaxError is a parse-time diagnostic with a rendered code snippet, in
// the style of runtime/parser/errors.go's ParseError: callers mostly just
// want the Error() string for display, but Line/Column are also exposed
// for tooling that wants to point an editor at the location.
type SyntaxError struct {
	Message string
	Source  string
	Line    int
	Column  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error: %s\n%s", e.Message, e.snippet())
}

func (e *SyntaxError) snippet() string {
	if e.Source == "" || e.Line <= 0 {
		return ""
	}
	lines := strings.Split(e.Source, "\n")
	if e.Line > len(lines) {
		return ""
	}
	content := lines[e.Line-1]

	var b strings.Builder
	fmt.Fprintf(&b, "  --> %d:%d\n", e.Line, e.Column)
	b.WriteString("   |\n")
	fmt.Fprintf(&b, "%2d | %s\n", e.Line, content)
	b.WriteString("   | ")
	if e.Column > 0 && e.Column <= len(content)+1 {
		b.WriteString(strings.Repeat(" ", e.Column-1) + "^")
	}
	return b.String()
}
