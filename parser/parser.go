// Package parser implements the recursive-descent parser of spec.md §4.3:
// it turns a Lexer's token stream into an *ast.AST. Errors are additive —
// a syntax error reports one diagnostic and resynchronises to the next
// statement boundary rather than aborting the parse.
package parser

import (
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/lexer"
)

// Parser holds the token-stream cursor and the arena being built.
type Parser struct {
	lex    *lexer.Lexer
	sink   *diag.Sink
	source string

	tree *ast.AST
	tok  lexer.Token // current token
}

// Parse tokenises and parses source, reporting diagnostics to sink.
// The returned AST is always non-nil; check sink.OK() to know whether it
// is safe to hand to the validator.
func Parse(source, filename string, sink *diag.Sink) *ast.AST {
	p := &Parser{
		lex:    lexer.New(source, filename, sink),
		sink:   sink,
		source: source,
		tree:   ast.New(filename),
	}
	p.advance()
	p.parseProgram()
	return p.tree
}

func (p *Parser) advance() {
	p.tok = p.lex.Next()
}

func (p *Parser) errorf(format string, args ...any) {
	if p.sink != nil {
		p.sink.Errorf(p.tok.Line, format, args...)
	}
}

// resync skips to the next statement boundary and reports one syntax
// error, per spec.md §4.3.
func (p *Parser) resync(format string, args ...any) {
	p.errorf(format, args...)
	p.tok = p.lex.ResyncToStatementBoundary()
	if p.tok.Type == lexer.SEMICOLON || p.tok.Type == lexer.LBRACE {
		p.advance()
	}
}

func (p *Parser) parseProgram() {
	for p.tok.Type != lexer.EOF {
		before := p.tok
		cmd := p.parseCommand()
		if cmd != 0 {
			p.tree.Root = append(p.tree.Root, cmd)
		}
		if p.tok == before {
			// Parser made no progress (e.g. a stray token at top level);
			// force forward motion so we never loop forever.
			p.resync("unexpected token %q", p.tok.String())
		}
	}
}

// parseCommand parses one command. It returns 0 (no node) if the command
// could not be recovered at all.
func (p *Parser) parseCommand() ast.NodeID {
	if p.tok.Type != lexer.IDENTIFIER {
		p.resync("expected command identifier, found %q", p.tok.String())
		return 0
	}
	name := p.tok.Text
	line := p.tok.Line
	p.advance()

	switch name {
	case "if", "elsif":
		return p.parseIfArm(name, line)
	case "else":
		cmd := p.tree.Arena.NewCommand(line, name)
		block, ok := p.parseBlock()
		if !ok {
			return 0
		}
		cmd.Block = block
		for _, c := range block {
			p.tree.Arena.Attach(cmd.ID(), c)
		}
		return cmd.ID()
	default:
		return p.parsePlainCommand(name, line)
	}
}

func (p *Parser) parseIfArm(name string, line int) ast.NodeID {
	cmd := p.tree.Arena.NewCommand(line, name)
	test := p.parseTest()
	if test == 0 {
		return 0
	}
	cmd.Tests = []ast.NodeID{test}
	p.tree.Arena.Attach(cmd.ID(), test)

	block, ok := p.parseBlock()
	if !ok {
		return 0
	}
	cmd.Block = block
	for _, c := range block {
		p.tree.Arena.Attach(cmd.ID(), c)
	}
	return cmd.ID()
}

func (p *Parser) parsePlainCommand(name string, line int) ast.NodeID {
	cmd := p.tree.Arena.NewCommand(line, name)
	args := p.parseArguments()
	cmd.Args = args
	for _, a := range args {
		p.tree.Arena.Attach(cmd.ID(), a)
	}

	switch p.tok.Type {
	case lexer.LBRACE:
		block, ok := p.parseBlock()
		if !ok {
			return 0
		}
		cmd.Block = block
		for _, c := range block {
			p.tree.Arena.Attach(cmd.ID(), c)
		}
	case lexer.SEMICOLON:
		p.advance()
	default:
		p.resync("expected ';' or '{' after command %q, found %q", name, p.tok.String())
		return cmd.ID()
	}
	return cmd.ID()
}

func (p *Parser) parseBlock() ([]ast.NodeID, bool) {
	if p.tok.Type != lexer.LBRACE {
		p.resync("expected '{', found %q", p.tok.String())
		return nil, false
	}
	p.advance()

	var commands []ast.NodeID
	for p.tok.Type != lexer.RBRACE {
		if p.tok.Type == lexer.EOF {
			p.errorf("unbalanced braces: missing '}'")
			return commands, false
		}
		before := p.tok
		cmd := p.parseCommand()
		if cmd != 0 {
			commands = append(commands, cmd)
		}
		if p.tok == before {
			p.resync("unexpected token %q inside block", p.tok.String())
		}
	}
	p.advance() // consume '}'
	return commands, true
}

// isArgumentStart reports whether the current token can start an Argument.
func (p *Parser) isArgumentStart() bool {
	switch p.tok.Type {
	case lexer.STRING, lexer.MULTILINE, lexer.NUMBER, lexer.TAG, lexer.LSQUARE:
		return true
	default:
		return false
	}
}

func (p *Parser) parseArguments() []ast.NodeID {
	var args []ast.NodeID
	for p.isArgumentStart() {
		args = append(args, p.parseArgument())
	}
	return args
}

func (p *Parser) parseArgument() ast.NodeID {
	switch p.tok.Type {
	case lexer.NUMBER:
		n := p.tree.Arena.NewNumber(p.tok.Line, p.tok.Number)
		p.advance()
		return n.ID()
	case lexer.TAG:
		t := p.tree.Arena.NewTag(p.tok.Line, p.tok.Text)
		p.advance()
		return t.ID()
	case lexer.STRING, lexer.MULTILINE, lexer.LSQUARE:
		return p.parseStringList()
	default:
		p.resync("expected argument, found %q", p.tok.String())
		return 0
	}
}

func (p *Parser) parseStringList() ast.NodeID {
	line := p.tok.Line
	sl := p.tree.Arena.NewStringList(line)

	if p.tok.Type == lexer.LSQUARE {
		p.advance()
		for p.tok.Type != lexer.RSQUARE {
			s := p.expectString()
			if s == 0 {
				break
			}
			sl.Items = append(sl.Items, s)
			p.tree.Arena.Attach(sl.ID(), s)
			if p.tok.Type == lexer.COMMA {
				p.advance()
				continue
			}
			break
		}
		if p.tok.Type != lexer.RSQUARE {
			p.resync("expected ']' to close string list, found %q", p.tok.String())
			return sl.ID()
		}
		p.advance()
		return sl.ID()
	}

	s := p.expectString()
	if s != 0 {
		sl.Items = append(sl.Items, s)
		p.tree.Arena.Attach(sl.ID(), s)
	}
	return sl.ID()
}

func (p *Parser) expectString() ast.NodeID {
	switch p.tok.Type {
	case lexer.STRING:
		s := p.tree.Arena.NewString(p.tok.Line, p.tok.Text, false)
		p.advance()
		return s.ID()
	case lexer.MULTILINE:
		s := p.tree.Arena.NewString(p.tok.Line, p.tok.Text, true)
		p.advance()
		return s.ID()
	default:
		p.resync("expected string, found %q", p.tok.String())
		return 0
	}
}

// parseTest parses one test: IDENTIFIER argument* testlist?
func (p *Parser) parseTest() ast.NodeID {
	if p.tok.Type != lexer.IDENTIFIER {
		p.resync("expected test identifier, found %q", p.tok.String())
		return 0
	}
	name := p.tok.Text
	line := p.tok.Line
	p.advance()

	test := p.tree.Arena.NewTest(line, name)
	args := p.parseArguments()
	test.Args = args
	for _, a := range args {
		p.tree.Arena.Attach(test.ID(), a)
	}

	if p.tok.Type == lexer.LPAREN {
		subtests := p.parseTestList()
		test.Subtests = subtests
		for _, t := range subtests {
			p.tree.Arena.Attach(test.ID(), t)
		}
	}
	return test.ID()
}

func (p *Parser) parseTestList() []ast.NodeID {
	p.advance() // consume '('
	var tests []ast.NodeID
	for p.tok.Type != lexer.RPAREN {
		if p.tok.Type == lexer.EOF {
			p.errorf("unbalanced parentheses: missing ')' in test list")
			return tests
		}
		t := p.parseTest()
		if t != 0 {
			tests = append(tests, t)
		}
		if p.tok.Type == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}
	if p.tok.Type != lexer.RPAREN {
		p.resync("expected ')' to close test list, found %q", p.tok.String())
		return tests
	}
	p.advance()
	return tests
}
