//go:build arm64

package compiler

import (
	"encoding/binary"
	"fmt"
)

// CodeGen64ARM generates AArch64 machine code from an IRModule: MOVZ/MOVK
// immediate loads, STP/LDP pre/post-index for the frame, and B/BL/B.cond
// placeholders resolved by a fixup pass once every function's offset is
// known. The codegen loop mirrors backend_amd64.go's stack-machine walk,
// substituted onto AAPCS64 registers (x0-x7 args, x29 frame pointer, x30
// link register).
type CodeGen64ARM struct {
	code []byte

	funcOffsets map[string]int
	labelOffset map[int64]int
	jumpFixups  []jumpFixup
	callFixups  []callFixup

	baseAddr uint64
	symbols  map[string]uintptr

	curFunc      *IRFunc
	curFrameSize int
	stackDepth   int
}

const (
	regX0  = 0
	regX1  = 1
	regX2  = 2
	regX9  = 9  // scratch
	regX10 = 10 // scratch
	regX16 = 16 // IP0 scratch
	regFP  = 29
	regLR  = 30
	regSP  = 31
	regXZR = 31
)

var aapcs64ArgRegs = []int{0, 1, 2, 3, 4, 5, 6, 7}

func newCodeGen64ARM(baseAddr uint64, symbols map[string]uintptr) *CodeGen64ARM {
	return &CodeGen64ARM{
		baseAddr:    baseAddr,
		symbols:     symbols,
		funcOffsets: map[string]int{},
		labelOffset: map[int64]int{},
	}
}

func (g *CodeGen64ARM) emit(inst uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], inst)
	g.code = append(g.code, b[:]...)
}

func (g *CodeGen64ARM) emitMovZ(rd int, imm16 uint16, shift int) {
	hw := uint32(shift / 16)
	g.emit(uint32(0xD2800000) | (hw << 21) | (uint32(imm16) << 5) | uint32(rd&0x1f))
}

func (g *CodeGen64ARM) emitMovK(rd int, imm16 uint16, shift int) {
	hw := uint32(shift / 16)
	g.emit(uint32(0xF2800000) | (hw << 21) | (uint32(imm16) << 5) | uint32(rd&0x1f))
}

// emitLoadImm64 always emits exactly 4 instructions so the fixed-width
// sequence can be safely used for any later in-place patch.
func (g *CodeGen64ARM) emitLoadImm64(rd int, val uint64) {
	g.emitMovZ(rd, uint16(val), 0)
	g.emitMovK(rd, uint16(val>>16), 16)
	g.emitMovK(rd, uint16(val>>32), 32)
	g.emitMovK(rd, uint16(val>>48), 48)
}

func (g *CodeGen64ARM) emitAddRR(rd, rn, rm int) {
	g.emit(uint32(0x8B000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}
func (g *CodeGen64ARM) emitSubRR(rd, rn, rm int) {
	g.emit(uint32(0xCB000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}
func (g *CodeGen64ARM) emitMul(rd, rn, rm int) {
	g.emit(uint32(0x9B007C00) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}
func (g *CodeGen64ARM) emitSdiv(rd, rn, rm int) {
	g.emit(uint32(0x9AC00C00) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}
func (g *CodeGen64ARM) emitMsub(rd, rn, rm, ra int) {
	g.emit(uint32(0x9B008000) | (uint32(rm&0x1f) << 16) | (uint32(ra&0x1f) << 10) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}
func (g *CodeGen64ARM) emitNeg(rd, rm int) { g.emitSubRR(rd, regXZR, rm) }
func (g *CodeGen64ARM) emitCmpRR(rn, rm int) {
	g.emit(uint32(0xEB000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(regXZR&0x1f))
}
func (g *CodeGen64ARM) emitCset(rd int, cond int) {
	inv := uint32(cond ^ 1)
	g.emit(uint32(0x9A9F07E0) | (inv << 12) | uint32(rd&0x1f))
}

// emitLdr/emitStr: LDR/STR Xt, [Xn, #imm] (scaled unsigned offset, the
// common case this backend produces since every offset it generates is a
// multiple of 8).
func (g *CodeGen64ARM) emitLdr(rt, rn, offset int) {
	uimm := uint32(offset / 8)
	g.emit(uint32(0xF9400000) | (uimm << 10) | (uint32(rn&0x1f) << 5) | uint32(rt&0x1f))
}
func (g *CodeGen64ARM) emitStr(rt, rn, offset int) {
	uimm := uint32(offset / 8)
	g.emit(uint32(0xF9000000) | (uimm << 10) | (uint32(rn&0x1f) << 5) | uint32(rt&0x1f))
}
func (g *CodeGen64ARM) emitStp(rt1, rt2, rn, offset int) {
	imm7 := uint32(offset/8) & 0x7F
	g.emit(uint32(0xA9800000) | (imm7 << 15) | (uint32(rt2&0x1f) << 10) | (uint32(rn&0x1f) << 5) | uint32(rt1&0x1f))
}
func (g *CodeGen64ARM) emitLdp(rt1, rt2, rn, offset int) {
	imm7 := uint32(offset/8) & 0x7F
	g.emit(uint32(0xA8C00000) | (imm7 << 15) | (uint32(rt2&0x1f) << 10) | (uint32(rn&0x1f) << 5) | uint32(rt1&0x1f))
}

func (g *CodeGen64ARM) emitBR(rn int)  { g.emit(uint32(0xD61F0000) | (uint32(rn&0x1f) << 5)) }
func (g *CodeGen64ARM) emitBLR(rn int) { g.emit(uint32(0xD63F0000) | (uint32(rn&0x1f) << 5)) }
func (g *CodeGen64ARM) emitRet()       { g.emit(uint32(0xD65F03C0) | (uint32(regLR&0x1f) << 5)) }

func (g *CodeGen64ARM) emitB() int {
	off := len(g.code)
	g.emit(0x14000000)
	return off
}
func (g *CodeGen64ARM) emitBCond(cond int) int {
	off := len(g.code)
	g.emit(uint32(0x54000000) | uint32(cond&0xF))
	return off
}
func (g *CodeGen64ARM) emitBL() int {
	off := len(g.code)
	g.emit(0x94000000)
	return off
}

func (g *CodeGen64ARM) patchBranch26(pos int, target int) {
	imm26 := uint32((target-pos)/4) & 0x3FFFFFF
	inst := binary.LittleEndian.Uint32(g.code[pos:])
	inst = (inst &^ 0x3FFFFFF) | imm26
	binary.LittleEndian.PutUint32(g.code[pos:], inst)
}
func (g *CodeGen64ARM) patchBCond(pos int, target int) {
	imm19 := uint32((target-pos)/4) & 0x7FFFF
	inst := binary.LittleEndian.Uint32(g.code[pos:])
	inst = (inst &^ (0x7FFFF << 5)) | (imm19 << 5)
	binary.LittleEndian.PutUint32(g.code[pos:], inst)
}

const condEQ = 0x0

// The condition codes compileCompare materializes with cset after a cmp,
// keyed the same way compileCompare's setcc table is on amd64.
const (
	condNE = 0x1
	condLT = 0xB
	condGT = 0xC
	condLE = 0xD
	condGE = 0xA
)

func (g *CodeGen64ARM) compile(mod *IRModule) {
	for _, f := range mod.Funcs {
		g.funcOffsets[f.Name] = len(g.code)
		g.compileFunc(f)
	}
	g.resolveFixups()
}

func init() {
	generateCode = func(mod *IRModule, symbols map[string]uintptr) ([]byte, map[string]int, error) {
		g := newCodeGen64ARM(0, symbols)
		g.compile(mod)
		for _, fx := range g.callFixups {
			if _, ok := g.funcOffsets[fx.callee]; !ok {
				return nil, nil, fmt.Errorf("unresolved symbol %q", fx.callee)
			}
		}
		return g.code, g.funcOffsets, nil
	}
}

// operandStackReserve bounds how deep a single function's expression
// evaluation stack (kept in x28, see emitPush/emitPop) may nest. The IR
// this backend targets has no unbounded-recursion expressions, so a
// fixed per-frame reserve is sufficient.
const operandStackReserve = 256

func (g *CodeGen64ARM) compileFunc(f *IRFunc) {
	g.curFunc = f
	g.curFrameSize = ((f.NumLocals*8+operandStackReserve)/16 + 1) * 16
	g.stackDepth = 0

	g.emitSubImmSP(16)
	g.emitStp(regFP, regLR, regSP, 0) // stp x29, x30, [sp]
	g.emitMovRegSP(regFP)
	g.emitSubImmSP(16)
	g.emitStp(regOSP, regXZR, regSP, 0) // save caller's x28 (callee-saved)
	g.emitSubImmSP(g.curFrameSize)
	// x28 := top of this frame's operand-stack reserve, just below the
	// locals; pushes grow down from there toward sp.
	g.emitMovRegSP(regOSP)
	g.emit(uint32(0x91000000) | ((uint32(g.curFrameSize-f.NumLocals*8) & 0xFFF) << 10) | (uint32(regOSP&0x1f) << 5) | uint32(regOSP&0x1f))

	for i := 0; i < f.NumParams && i < len(aapcs64ArgRegs); i++ {
		g.emitStoreLocal(i, aapcs64ArgRegs[i])
	}

	for _, inst := range f.Body {
		g.compileInst(inst)
	}
}

// emitMovRegSP emits `mov xd, sp` (alias for ADD xd, sp, #0).
func (g *CodeGen64ARM) emitMovRegSP(rd int) {
	g.emit(uint32(0x91000000) | (uint32(regSP&0x1f) << 5) | uint32(rd&0x1f))
}

// emitSubImmSP emits `sub sp, sp, #imm12`.
func (g *CodeGen64ARM) emitSubImmSP(imm int) {
	g.emit(uint32(0xD1000000) | ((uint32(imm) & 0xFFF) << 10) | (uint32(regSP&0x1f) << 5) | uint32(regSP&0x1f))
}

// emitAddImmSP emits `add sp, sp, #imm12`.
func (g *CodeGen64ARM) emitAddImmSP(imm int) {
	g.emit(uint32(0x91000000) | ((uint32(imm) & 0xFFF) << 10) | (uint32(regSP&0x1f) << 5) | uint32(regSP&0x1f))
}

// emitLdrFP/emitStoreLocal address a local by computing its byte offset
// from x29 into a scratch register rather than relying on LDR/STR's
// limited signed-immediate range, since frame offsets here can exceed it.
// localFPOffset is the byte offset of local idx from x29. The saved-x28
// pair (see compileFunc) sits between the frame-pointer chain and the
// locals/operand-stack region, so locals start 16 bytes below fp.
func localFPOffset(idx int) int { return -16 - 8*(idx+1) }

func (g *CodeGen64ARM) emitLdrFP(reg, idx int) {
	off := localFPOffset(idx)
	g.emitLoadImm64(regX16, uint64(int64(off)))
	g.emitAddRR(regX16, regFP, regX16)
	g.emit(uint32(0xF9400000) | (uint32(regX16&0x1f) << 5) | uint32(reg&0x1f))
}
func (g *CodeGen64ARM) emitStoreLocal(idx, reg int) {
	off := localFPOffset(idx)
	g.emitLoadImm64(regX16, uint64(int64(off)))
	g.emitAddRR(regX16, regFP, regX16)
	g.emit(uint32(0xF9000000) | (uint32(regX16&0x1f) << 5) | uint32(reg&0x1f))
}

// The IR stack is modeled with an explicit operand-stack pointer kept in
// x28 (callee-saved), since using the real AAPCS64 SP directly would
// require keeping it 16-byte aligned across every push/pop. Push/pop
// pre/post-decrement/increment x28 by 8.
const regOSP = 28

func (g *CodeGen64ARM) emitPush(reg int) {
	// str reg, [x28, #-8]!  (pre-index)
	g.emit(uint32(0xF8000C00) | (uint32(regOSP&0x1f) << 5) | uint32(reg&0x1f) | (uint32(0x1F8&0x1FF) << 12))
	g.stackDepth++
}
func (g *CodeGen64ARM) emitPop(reg int) {
	// ldr reg, [x28], #8  (post-index)
	g.emit(uint32(0xF8400400) | (uint32(regOSP&0x1f) << 5) | uint32(reg&0x1f) | (uint32(8&0x1FF) << 12))
	g.stackDepth--
}

func (g *CodeGen64ARM) compileInst(inst Inst) {
	switch inst.Op {
	case OpConstI64:
		g.emitLoadImm64(regX9, uint64(inst.A))
		g.emitPush(regX9)
	case OpLocalGet:
		g.emitLdrFP(regX9, int(inst.A))
		g.emitPush(regX9)
	case OpLocalSet:
		g.emitPop(regX9)
		g.emitStoreLocal(int(inst.A), regX9)
		g.emitPush(regX9)
	case OpGlobalGet:
		addr := g.symbols["@global:"+inst.Str]
		g.emitLoadImm64(regX9, uint64(addr))
		g.emitLdr(regX9, regX9, 0)
		g.emitPush(regX9)
	case OpGlobalSet:
		g.emitPop(regX9)
		addr := g.symbols["@global:"+inst.Str]
		g.emitLoadImm64(regX10, uint64(addr))
		g.emitStr(regX9, regX10, 0)
		g.emitPush(regX9)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		g.compileBinOp(inst.Op)
	case OpEq, OpNeq, OpLt, OpGt, OpLeq, OpGeq:
		g.compileCompare(inst.Op)
	case OpNeg:
		g.emitPop(regX9)
		g.emitNeg(regX9, regX9)
		g.emitPush(regX9)
	case OpNot:
		g.emitPop(regX9)
		g.emitCmpRR(regX9, regXZR)
		g.emitCset(regX9, condEQ)
		g.emitPush(regX9)
	case OpDrop:
		g.emitPop(regX9)
	case OpLabel:
		g.labelOffset[inst.A] = len(g.code)
	case OpJmp:
		pos := g.emitB()
		g.jumpFixups = append(g.jumpFixups, jumpFixup{pos: pos, label: inst.A})
	case OpJmpIfNot:
		g.emitPop(regX9)
		g.emitCmpRR(regX9, regXZR)
		pos := g.emitBCond(condEQ)
		g.jumpFixups = append(g.jumpFixups, jumpFixup{pos: pos, label: inst.A})
	case OpCall:
		g.compileCall(inst)
	case OpReturn:
		if g.stackDepth > 0 {
			g.emitPop(regX0)
		} else {
			g.emitLoadImm64(regX0, 0)
		}
		g.emitAddImmSP(g.curFrameSize)
		g.emitLdp(regOSP, regXZR, regSP, 0) // restore caller's x28
		g.emitAddImmSP(16)
		g.emitLdp(regFP, regLR, regSP, 0) // ldp x29, x30, [sp]
		g.emitAddImmSP(16)
		g.emitRet()
	}
}

func (g *CodeGen64ARM) compileBinOp(op IROp) {
	g.emitPop(10) // rhs -> x10
	g.emitPop(9)  // lhs -> x9
	switch op {
	case OpAdd:
		g.emitAddRR(9, 9, 10)
	case OpSub:
		g.emitSubRR(9, 9, 10)
	case OpMul:
		g.emitMul(9, 9, 10)
	case OpDiv:
		g.emitSdiv(9, 9, 10)
	case OpMod:
		g.emitSdiv(regX16, 9, 10)
		g.emitMsub(9, regX16, 10, 9)
	}
	g.emitPush(9)
}

func (g *CodeGen64ARM) compileCompare(op IROp) {
	g.emitPop(10)
	g.emitPop(9)
	g.emitCmpRR(9, 10)
	var cond int
	switch op {
	case OpEq:
		cond = condEQ
	case OpNeq:
		cond = condNE
	case OpLt:
		cond = condLT
	case OpGt:
		cond = condGT
	case OpLeq:
		cond = condLE
	case OpGeq:
		cond = condGE
	}
	g.emitCset(9, cond)
	g.emitPush(9)
}

func (g *CodeGen64ARM) compileCall(inst Inst) {
	argc := int(inst.A)
	for i := argc - 1; i >= 0; i-- {
		g.emitPop(aapcs64ArgRegs[i])
	}
	if addr, ok := g.symbols[inst.Str]; ok {
		g.emitLoadImm64(16, uint64(addr))
		g.emitBLR(16)
	} else {
		pos := g.emitBL()
		g.callFixups = append(g.callFixups, callFixup{pos: pos, callee: inst.Str})
	}
	g.emitPush(regX0)
}

func (g *CodeGen64ARM) resolveFixups() {
	for _, fx := range g.jumpFixups {
		target, ok := g.labelOffset[fx.label]
		if !ok {
			continue
		}
		inst := binary.LittleEndian.Uint32(g.code[fx.pos:])
		if inst>>24 == 0x54 {
			g.patchBCond(fx.pos, target)
		} else {
			g.patchBranch26(fx.pos, target)
		}
	}
	for _, fx := range g.callFixups {
		target, ok := g.funcOffsets[fx.callee]
		if !ok {
			continue
		}
		g.patchBranch26(fx.pos, target)
	}
}
