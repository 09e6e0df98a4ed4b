//go:build amd64

package compiler

import (
	"encoding/binary"
	"fmt"
)

// CodeGen64 generates x86-64 machine code from an IRModule: a byte buffer
// built by small emit* helpers, a function-offset table for intra-module
// calls, and a fixup list resolved once every function has been emitted.
//
// There is no ELF section layout, only a flat, position-independent code
// buffer: intra-module calls and jumps are rel32, imported symbols and
// globals are absolute addresses. Module.Link generates the code before it
// allocates the page and copies the buffer there unchanged, so baseAddr
// is passed as 0 and not used.
type CodeGen64 struct {
	code []byte

	funcOffsets map[string]int
	labelOffset map[int64]int
	jumpFixups  []jumpFixup
	callFixups  []callFixup

	baseAddr uint64
	symbols  map[string]uintptr

	curFunc      *IRFunc
	curFrameSize int
	// stackDepth tracks how many 8-byte slots are currently pushed, so
	// jump targets land with a consistent stack shape; the whole IR
	// operand stack is modeled as real pushes/pops onto the native stack.
	stackDepth int
}

type jumpFixup struct {
	pos   int // offset of the rel32 field
	label int64
}

type callFixup struct {
	pos    int // offset of the rel32 field
	callee string
}

const (
	regRAX = 0
	regRCX = 1
	regRDX = 2
	regRBX = 3
	regRSP = 4
	regRBP = 5
	regRSI = 6
	regRDI = 7
)

// sysvArgRegs is the System V AMD64 integer/pointer argument register
// order, used both for the entry prologue (spilling incoming args to
// locals) and for outgoing calls (popping stack values into argument
// registers before `call`).
var sysvArgRegs = []int{regRDI, regRSI, regRDX, regRCX, 8 /*r8*/, 9 /*r9*/}

func newCodeGen64(baseAddr uint64, symbols map[string]uintptr) *CodeGen64 {
	return &CodeGen64{
		baseAddr:    baseAddr,
		symbols:     symbols,
		funcOffsets: map[string]int{},
		labelOffset: map[int64]int{},
	}
}

func (g *CodeGen64) emitByte(b byte) { g.code = append(g.code, b) }
func (g *CodeGen64) emitU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	g.code = append(g.code, b[:]...)
}
func (g *CodeGen64) emitU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	g.code = append(g.code, b[:]...)
}

// rexOf builds a REX prefix: W (64-bit operand), R (reg extension),
// B (rm/base extension).
func rexOf(w, r, b bool) byte {
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if r {
		rex |= 0x04
	}
	if b {
		rex |= 0x01
	}
	return rex
}

func (g *CodeGen64) emitPushReg(reg int) {
	if reg >= 8 {
		g.emitByte(0x41)
	}
	g.emitByte(byte(0x50 + (reg & 7)))
	g.stackDepth++
}

func (g *CodeGen64) emitPopReg(reg int) {
	if reg >= 8 {
		g.emitByte(0x41)
	}
	g.emitByte(byte(0x58 + (reg & 7)))
	g.stackDepth--
}

// emitMovRegImm64 emits `movabs reg, imm64`.
func (g *CodeGen64) emitMovRegImm64(reg int, val uint64) {
	g.emitByte(rexOf(true, false, reg >= 8))
	g.emitByte(byte(0xB8 + (reg & 7)))
	g.emitU64(val)
}

// emitMovRegReg emits `mov dst, src` (64-bit).
func (g *CodeGen64) emitMovRegReg(dst, src int) {
	g.emitByte(rexOf(true, src >= 8, dst >= 8))
	g.emitByte(0x89)
	g.emitByte(0xC0 | byte((src&7)<<3) | byte(dst&7))
}

// emitLoadLocal emits `mov reg, [rbp - 8*(idx+1)]`.
func (g *CodeGen64) emitLoadLocal(idx, reg int) {
	disp := int32(-8 * (idx + 1))
	g.emitByte(rexOf(true, reg >= 8, false))
	g.emitByte(0x8B)
	g.emitByte(0x85 | byte((reg&7)<<3))
	g.emitU32(uint32(disp))
}

// emitStoreLocal emits `mov [rbp - 8*(idx+1)], reg`.
func (g *CodeGen64) emitStoreLocal(idx, reg int) {
	disp := int32(-8 * (idx + 1))
	g.emitByte(rexOf(true, reg >= 8, false))
	g.emitByte(0x89)
	g.emitByte(0x85 | byte((reg&7)<<3))
	g.emitU32(uint32(disp))
}

func (g *CodeGen64) emitRet() { g.emitByte(0xC3) }

func init() {
	generateCode = func(mod *IRModule, symbols map[string]uintptr) ([]byte, map[string]int, error) {
		g := newCodeGen64(0, symbols)
		g.compile(mod)
		for _, fx := range g.callFixups {
			if _, ok := g.funcOffsets[fx.callee]; !ok {
				return nil, nil, fmt.Errorf("unresolved symbol %q", fx.callee)
			}
		}
		return g.code, g.funcOffsets, nil
	}
}

// compile lays out a whole module: every function in order, recording its
// start offset, then resolves call/jump fixups once every offset is known.
func (g *CodeGen64) compile(mod *IRModule) {
	for _, f := range mod.Funcs {
		g.funcOffsets[f.Name] = len(g.code)
		g.compileFunc(f)
	}
	g.resolveFixups()
}

func (g *CodeGen64) compileFunc(f *IRFunc) {
	g.curFunc = f
	g.curFrameSize = f.NumLocals * 8
	g.stackDepth = 0

	// prologue
	g.emitPushReg(regRBP)
	g.emitMovRegReg(regRBP, regRSP)
	if g.curFrameSize > 0 {
		// sub rsp, frameSize
		g.emitByte(0x48)
		g.emitByte(0x81)
		g.emitByte(0xEC)
		g.emitU32(uint32(g.curFrameSize))
	}
	for i := 0; i < f.NumParams && i < len(sysvArgRegs); i++ {
		g.emitStoreLocal(i, sysvArgRegs[i])
	}

	for _, inst := range f.Body {
		g.compileInst(inst)
	}
}

func (g *CodeGen64) compileInst(inst Inst) {
	switch inst.Op {
	case OpConstI64:
		g.emitMovRegImm64(regRAX, uint64(inst.A))
		g.emitPushReg(regRAX)
	case OpLocalGet:
		g.emitLoadLocal(int(inst.A), regRAX)
		g.emitPushReg(regRAX)
	case OpLocalSet:
		g.emitPopReg(regRAX)
		g.emitStoreLocal(int(inst.A), regRAX)
		g.emitPushReg(regRAX) // assignment is itself an expression value
	case OpGlobalGet, OpGlobalSet:
		// Each static global is an 8-byte cell Module.Link allocates
		// before code generation and binds as "@global:<name>";
		// compileGlobalAccess loads or stores through that address.
		g.compileGlobalAccess(inst)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		g.compileBinOp(inst.Op)
	case OpEq, OpNeq, OpLt, OpGt, OpLeq, OpGeq:
		g.compileCompare(inst.Op)
	case OpNeg:
		g.emitPopReg(regRAX)
		g.emitByte(0x48)
		g.emitByte(0xF7)
		g.emitByte(0xD8) // neg rax
		g.emitPushReg(regRAX)
	case OpNot:
		g.emitPopReg(regRAX)
		g.emitByte(0x48)
		g.emitByte(0x85)
		g.emitByte(0xC0) // test rax, rax
		g.emitByte(0x0F)
		g.emitByte(0x94)
		g.emitByte(0xC0) // sete al
		g.emitByte(0x48)
		g.emitByte(0x0F)
		g.emitByte(0xB6)
		g.emitByte(0xC0) // movzx rax, al
		g.emitPushReg(regRAX)
	case OpDrop:
		g.emitPopReg(regRAX)
	case OpLabel:
		g.labelOffset[inst.A] = len(g.code)
	case OpJmp:
		g.emitByte(0xE9)
		g.jumpFixups = append(g.jumpFixups, jumpFixup{pos: len(g.code), label: inst.A})
		g.emitU32(0)
	case OpJmpIfNot:
		g.emitPopReg(regRAX)
		g.emitByte(0x48)
		g.emitByte(0x85)
		g.emitByte(0xC0) // test rax, rax
		g.emitByte(0x0F)
		g.emitByte(0x84) // jz rel32
		g.jumpFixups = append(g.jumpFixups, jumpFixup{pos: len(g.code), label: inst.A})
		g.emitU32(0)
	case OpCall:
		g.compileCall(inst)
	case OpReturn:
		if g.stackDepth > 0 {
			g.emitPopReg(regRAX)
		} else {
			g.emitMovRegImm64(regRAX, 0)
		}
		g.emitMovRegReg(regRSP, regRBP)
		g.emitPopReg(regRBP)
		g.emitRet()
	}
}

func (g *CodeGen64) compileGlobalAccess(inst Inst) {
	addr, ok := g.symbols["@global:"+inst.Str]
	if !ok {
		addr = 0
	}
	switch inst.Op {
	case OpGlobalGet:
		g.emitMovRegImm64(regRCX, addr)
		// mov rax, [rcx]
		g.emitByte(rexOf(true, false, false))
		g.emitByte(0x8B)
		g.emitByte(0x01)
		g.emitPushReg(regRAX)
	case OpGlobalSet:
		g.emitPopReg(regRAX)
		g.emitMovRegImm64(regRCX, addr)
		// mov [rcx], rax
		g.emitByte(rexOf(true, false, false))
		g.emitByte(0x89)
		g.emitByte(0x01)
		g.emitPushReg(regRAX)
	}
}

func (g *CodeGen64) compileBinOp(op IROp) {
	g.emitPopReg(regRCX) // rhs
	g.emitPopReg(regRAX) // lhs
	switch op {
	case OpAdd:
		g.emitByte(0x48)
		g.emitByte(0x01)
		g.emitByte(0xC8) // add rax, rcx
	case OpSub:
		g.emitByte(0x48)
		g.emitByte(0x29)
		g.emitByte(0xC8) // sub rax, rcx
	case OpMul:
		g.emitByte(0x48)
		g.emitByte(0x0F)
		g.emitByte(0xAF)
		g.emitByte(0xC1) // imul rax, rcx
	case OpDiv, OpMod:
		g.emitByte(0x48)
		g.emitByte(0x99) // cqo
		g.emitByte(0x48)
		g.emitByte(0xF7)
		g.emitByte(0xF9) // idiv rcx
		if op == OpMod {
			g.emitMovRegReg(regRAX, regRDX)
		}
	}
	g.emitPushReg(regRAX)
}

func (g *CodeGen64) compileCompare(op IROp) {
	g.emitPopReg(regRCX)
	g.emitPopReg(regRAX)
	g.emitByte(0x48)
	g.emitByte(0x39)
	g.emitByte(0xC8) // cmp rax, rcx
	var setcc byte
	switch op {
	case OpEq:
		setcc = 0x94
	case OpNeq:
		setcc = 0x95
	case OpLt:
		setcc = 0x9C
	case OpGt:
		setcc = 0x9F
	case OpLeq:
		setcc = 0x9E
	case OpGeq:
		setcc = 0x9D
	}
	g.emitByte(0x0F)
	g.emitByte(setcc)
	g.emitByte(0xC0) // setcc al
	g.emitByte(0x48)
	g.emitByte(0x0F)
	g.emitByte(0xB6)
	g.emitByte(0xC0) // movzx rax, al
	g.emitPushReg(regRAX)
}

func (g *CodeGen64) compileCall(inst Inst) {
	argc := int(inst.A)
	// Pop arguments off the IR stack into argument registers in reverse
	// push order, then into forward calling-convention order.
	args := make([]int, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = sysvArgRegs[i]
		g.emitPopReg(args[i])
	}

	if addr, ok := g.symbols[inst.Str]; ok {
		// Imported or built-in symbol: address is known now, call
		// through a register.
		g.emitMovRegImm64(regRAX, uint64(addr))
		g.emitByte(0xFF)
		g.emitByte(0xD0) // call rax
	} else {
		// Intra-module call: relative call, resolved once every
		// function's offset is known.
		g.emitByte(0xE8)
		g.callFixups = append(g.callFixups, callFixup{pos: len(g.code), callee: inst.Str})
		g.emitU32(0)
	}
	g.emitPushReg(regRAX)
}

func (g *CodeGen64) resolveFixups() {
	for _, fx := range g.jumpFixups {
		target, ok := g.labelOffset[fx.label]
		if !ok {
			continue
		}
		rel := int32(target - (fx.pos + 4))
		binary.LittleEndian.PutUint32(g.code[fx.pos:], uint32(rel))
	}
	for _, fx := range g.callFixups {
		target, ok := g.funcOffsets[fx.callee]
		if !ok {
			continue // reported by generateCode, which Link turns into a LinkError
		}
		rel := int32(target - (fx.pos + 4))
		binary.LittleEndian.PutUint32(g.code[fx.pos:], uint32(rel))
	}
}
