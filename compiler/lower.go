package compiler

// lower walks the AST into the stack-machine IR (ir.go), resolving each
// identifier to a local slot, a global cell, or (if neither) an extern/
// built-in call target.
type lowerer struct {
	globals   map[string]bool
	nextLabel int
}

func lower(prog *program) *IRModule {
	lw := &lowerer{globals: map[string]bool{}}
	mod := &IRModule{Externs: map[string]bool{}}
	for _, g := range prog.globals {
		lw.globals[g] = true
		mod.Globals = append(mod.Globals, IRGlobal{Name: g})
	}
	for _, e := range prog.externs {
		mod.Externs[e.name] = true
	}
	for _, fn := range prog.funcs {
		mod.Funcs = append(mod.Funcs, lw.lowerFunc(fn))
	}
	return mod
}

func (lw *lowerer) label() int64 {
	id := int64(lw.nextLabel)
	lw.nextLabel++
	return id
}

func (lw *lowerer) lowerFunc(fn funcDecl) *IRFunc {
	f := &IRFunc{
		Name:      fn.name,
		NumParams: len(fn.params),
		Locals:    map[string]int{},
	}
	for i, p := range fn.params {
		f.Locals[p] = i
	}
	f.NumLocals = len(fn.params)

	for _, s := range fn.body {
		lw.lowerStmt(f, s)
	}
	// Implicit `return;` if the body falls through.
	f.Body = append(f.Body, Inst{Op: OpReturn})
	return f
}

func (lw *lowerer) localSlot(f *IRFunc, name string) (int, bool) {
	if idx, ok := f.Locals[name]; ok {
		return idx, true
	}
	return 0, false
}

func (lw *lowerer) lowerStmt(f *IRFunc, s stmt) {
	switch n := s.(type) {
	case localDeclStmt:
		idx := f.NumLocals
		f.Locals[n.name] = idx
		f.NumLocals++
		if n.init != nil {
			lw.lowerExpr(f, n.init)
			f.Body = append(f.Body, Inst{Op: OpLocalSet, A: int64(idx)})
		}
	case assignStmt:
		lw.lowerExpr(f, n.expr)
		if idx, ok := lw.localSlot(f, n.name); ok {
			f.Body = append(f.Body, Inst{Op: OpLocalSet, A: int64(idx)})
		} else {
			f.Body = append(f.Body, Inst{Op: OpGlobalSet, Str: n.name})
		}
	case exprStmt:
		lw.lowerExpr(f, n.expr)
		f.Body = append(f.Body, Inst{Op: OpDrop})
	case returnStmt:
		if n.expr != nil {
			lw.lowerExpr(f, n.expr)
		} else {
			f.Body = append(f.Body, Inst{Op: OpConstI64, A: 0})
		}
		f.Body = append(f.Body, Inst{Op: OpReturn})
	case ifStmt:
		lw.lowerExpr(f, n.cond)
		elseLabel := lw.label()
		endLabel := lw.label()
		f.Body = append(f.Body, Inst{Op: OpJmpIfNot, A: elseLabel})
		for _, st := range n.then {
			lw.lowerStmt(f, st)
		}
		f.Body = append(f.Body, Inst{Op: OpJmp, A: endLabel})
		f.Body = append(f.Body, Inst{Op: OpLabel, A: elseLabel})
		for _, st := range n.els {
			lw.lowerStmt(f, st)
		}
		f.Body = append(f.Body, Inst{Op: OpLabel, A: endLabel})
	case whileStmt:
		topLabel := lw.label()
		endLabel := lw.label()
		f.Body = append(f.Body, Inst{Op: OpLabel, A: topLabel})
		lw.lowerExpr(f, n.cond)
		f.Body = append(f.Body, Inst{Op: OpJmpIfNot, A: endLabel})
		for _, st := range n.body {
			lw.lowerStmt(f, st)
		}
		f.Body = append(f.Body, Inst{Op: OpJmp, A: topLabel})
		f.Body = append(f.Body, Inst{Op: OpLabel, A: endLabel})
	}
}

func (lw *lowerer) lowerExpr(f *IRFunc, e expr) {
	switch n := e.(type) {
	case intLit:
		f.Body = append(f.Body, Inst{Op: OpConstI64, A: n.value})
	case ident:
		if idx, ok := lw.localSlot(f, n.name); ok {
			f.Body = append(f.Body, Inst{Op: OpLocalGet, A: int64(idx)})
		} else {
			f.Body = append(f.Body, Inst{Op: OpGlobalGet, Str: n.name})
		}
	case binOp:
		if n.op == "neg" {
			lw.lowerExpr(f, n.r)
			f.Body = append(f.Body, Inst{Op: OpNeg})
			return
		}
		if n.op == "!" {
			lw.lowerExpr(f, n.r)
			f.Body = append(f.Body, Inst{Op: OpNot})
			return
		}
		lw.lowerExpr(f, n.l)
		lw.lowerExpr(f, n.r)
		f.Body = append(f.Body, Inst{Op: binOpCode(n.op)})
	case call:
		for _, a := range n.args {
			lw.lowerExpr(f, a)
		}
		f.Body = append(f.Body, Inst{Op: OpCall, Str: n.callee, A: int64(len(n.args))})
	}
}

func binOpCode(op string) IROp {
	switch op {
	case "+":
		return OpAdd
	case "-":
		return OpSub
	case "*":
		return OpMul
	case "/":
		return OpDiv
	case "%":
		return OpMod
	case "==":
		return OpEq
	case "!=":
		return OpNeq
	case "<":
		return OpLt
	case ">":
		return OpGt
	case "<=":
		return OpLeq
	case ">=":
		return OpGeq
	default:
		return OpAdd
	}
}
