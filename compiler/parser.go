package compiler

// parser is a recursive-descent parser over the curated C subset: a
// single current token, peek/advance/expect helpers, and one method per
// grammar production.
type parser struct {
	lex  *lexer
	tok  token
	diag *diagnosticSink
}

func newParser(src string, diag *diagnosticSink) *parser {
	p := &parser{lex: newLexer(src), diag: diag}
	p.tok = p.lex.next()
	return p
}

func (p *parser) advance() token {
	t := p.tok
	p.tok = p.lex.next()
	return t
}

func (p *parser) isPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) isKeyword(s string) bool {
	return p.tok.kind == tokKeyword && p.tok.text == s
}

func (p *parser) expectPunct(s string) bool {
	if !p.isPunct(s) {
		p.diag.emit("line %d: expected %q, got %s", p.tok.line, s, p.tok)
		return false
	}
	p.advance()
	return true
}

// isTypeKeyword reports whether the current token starts a type name in
// this subset (int, void, char — pointers and structs are not modeled).
func (p *parser) isTypeKeyword() bool {
	return p.isKeyword("int") || p.isKeyword("void") || p.isKeyword("char")
}

// parseProgram parses the whole translation unit (built-in header already
// stripped by the caller — see Module.New).
func (p *parser) parseProgram() *program {
	prog := &program{}
	for p.tok.kind != tokEOF && !p.diag.has {
		switch {
		case p.isKeyword("extern"):
			prog.externs = append(prog.externs, p.parseExtern())
		case p.isKeyword("static") || p.isTypeKeyword():
			p.parseTopLevelDeclOrFunc(prog)
		default:
			p.diag.emit("line %d: unexpected token %s at top level", p.tok.line, p.tok)
			return prog
		}
	}
	return prog
}

func (p *parser) parseExtern() externDecl {
	p.advance() // 'extern'
	p.parseTypeName()
	name := p.tok.text
	p.advance() // ident
	p.expectPunct("(")
	n := 0
	for !p.isPunct(")") && p.tok.kind != tokEOF && !p.diag.has {
		p.parseTypeName()
		if p.tok.kind == tokIdent {
			p.advance()
		}
		n++
		if p.isPunct(",") {
			p.advance()
		} else if !p.isPunct(")") {
			p.diag.emit("line %d: unexpected token %s in parameter list", p.tok.line, p.tok)
		}
	}
	p.expectPunct(")")
	p.expectPunct(";")
	return externDecl{name: name, numParams: n}
}

func (p *parser) parseTypeName() {
	for p.isTypeKeyword() || p.isKeyword("static") {
		p.advance()
	}
	for p.isPunct("*") {
		p.advance()
	}
}

// parseTopLevelDeclOrFunc disambiguates `static int x;` from
// `int f(...) { ... }` by scanning past the identifier.
func (p *parser) parseTopLevelDeclOrFunc(prog *program) {
	isStatic := p.isKeyword("static")
	p.parseTypeName()
	name := p.tok.text
	p.advance() // identifier

	if p.isPunct("(") {
		fn := p.parseFuncRest(name)
		prog.funcs = append(prog.funcs, fn)
		return
	}

	if isStatic {
		prog.globals = append(prog.globals, name)
	}
	p.expectPunct(";")
}

func (p *parser) parseFuncRest(name string) funcDecl {
	p.expectPunct("(")
	var params []string
	for !p.isPunct(")") && p.tok.kind != tokEOF && !p.diag.has {
		p.parseTypeName()
		if p.tok.kind == tokIdent {
			params = append(params, p.tok.text)
			p.advance()
		}
		if p.isPunct(",") {
			p.advance()
		} else if !p.isPunct(")") {
			p.diag.emit("line %d: unexpected token %s in parameter list", p.tok.line, p.tok)
		}
	}
	p.expectPunct(")")
	body := p.parseBlock()
	return funcDecl{name: name, params: params, body: body}
}

func (p *parser) parseBlock() []stmt {
	p.expectPunct("{")
	var out []stmt
	for !p.isPunct("}") && p.tok.kind != tokEOF && !p.diag.has {
		out = append(out, p.parseStmt())
	}
	p.expectPunct("}")
	return out
}

func (p *parser) parseStmt() stmt {
	switch {
	case p.isKeyword("return"):
		p.advance()
		var e expr
		if !p.isPunct(";") {
			e = p.parseExpr()
		}
		p.expectPunct(";")
		return returnStmt{expr: e}
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("while"):
		return p.parseWhile()
	case p.isTypeKeyword():
		p.parseTypeName()
		name := p.tok.text
		p.advance()
		var init expr
		if p.isPunct("=") {
			p.advance()
			init = p.parseExpr()
		}
		p.expectPunct(";")
		return localDeclStmt{name: name, init: init}
	case p.tok.kind == tokIdent:
		name := p.tok.text
		save := *p.lex
		saveTok := p.tok
		p.advance()
		if p.isPunct("=") {
			p.advance()
			e := p.parseExpr()
			p.expectPunct(";")
			return assignStmt{name: name, expr: e}
		}
		// Not an assignment: rewind and parse as an expression statement.
		*p.lex = save
		p.tok = saveTok
		e := p.parseExpr()
		p.expectPunct(";")
		return exprStmt{expr: e}
	default:
		e := p.parseExpr()
		p.expectPunct(";")
		return exprStmt{expr: e}
	}
}

func (p *parser) parseIf() stmt {
	p.advance() // if
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	then := p.parseBlock()
	var els []stmt
	if p.isKeyword("else") {
		p.advance()
		if p.isKeyword("if") {
			els = []stmt{p.parseIf()}
		} else {
			els = p.parseBlock()
		}
	}
	return ifStmt{cond: cond, then: then, els: els}
}

func (p *parser) parseWhile() stmt {
	p.advance() // while
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	body := p.parseBlock()
	return whileStmt{cond: cond, body: body}
}

// Expression grammar, lowest to highest precedence:
//   equality   := relational (('==' | '!=') relational)*
//   relational := additive (('<' | '>' | '<=' | '>=') additive)*
//   additive   := term (('+' | '-') term)*
//   term       := unary (('*' | '/' | '%') unary)*
//   unary      := ('-' | '!')? primary
//   primary    := int | ident | ident '(' args ')' | '(' expr ')'

func (p *parser) parseExpr() expr { return p.parseEquality() }

func (p *parser) parseEquality() expr {
	l := p.parseRelational()
	for p.isPunct("==") || p.isPunct("!=") {
		op := p.advance().text
		r := p.parseRelational()
		l = binOp{op: op, l: l, r: r}
	}
	return l
}

func (p *parser) parseRelational() expr {
	l := p.parseAdditive()
	for p.isPunct("<") || p.isPunct(">") || p.isPunct("<=") || p.isPunct(">=") {
		op := p.advance().text
		r := p.parseAdditive()
		l = binOp{op: op, l: l, r: r}
	}
	return l
}

func (p *parser) parseAdditive() expr {
	l := p.parseTerm()
	for p.isPunct("+") || p.isPunct("-") {
		op := p.advance().text
		r := p.parseTerm()
		l = binOp{op: op, l: l, r: r}
	}
	return l
}

func (p *parser) parseTerm() expr {
	l := p.parseUnary()
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.advance().text
		r := p.parseUnary()
		l = binOp{op: op, l: l, r: r}
	}
	return l
}

func (p *parser) parseUnary() expr {
	if p.isPunct("-") {
		p.advance()
		return binOp{op: "neg", l: intLit{0}, r: p.parseUnary()}
	}
	if p.isPunct("!") {
		p.advance()
		return binOp{op: "!", l: intLit{0}, r: p.parseUnary()}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() expr {
	switch {
	case p.tok.kind == tokInt:
		v := p.tok.ival
		p.advance()
		return intLit{value: v}
	case p.tok.kind == tokIdent:
		name := p.tok.text
		p.advance()
		if p.isPunct("(") {
			p.advance()
			var args []expr
			for !p.isPunct(")") && p.tok.kind != tokEOF && !p.diag.has {
				args = append(args, p.parseExpr())
				if p.isPunct(",") {
					p.advance()
				}
			}
			p.expectPunct(")")
			return call{callee: name, args: args}
		}
		return ident{name: name}
	case p.isPunct("("):
		p.advance()
		e := p.parseExpr()
		p.expectPunct(")")
		return e
	default:
		p.diag.emit("line %d: unexpected token %s in expression", p.tok.line, p.tok)
		return intLit{value: 0}
	}
}
