package compiler

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

// moduleState tracks where a Module sits in its New -> AddSymbol* -> Link
// -> FindSymbol*/Free lifecycle.
type moduleState int

const (
	stateCompiled moduleState = iota
	stateLinked
	stateFreed
)

// Module is a compiled, relocatable, loadable C module: the lifetime
// surface the rest of the instrumentation core builds on.
type Module struct {
	state moduleState

	mod  *IRModule
	prog *program

	symbols map[string]uintptr // AddSymbol imports, filled in before Link
	exports map[string]uintptr // function entry points, filled in by Link

	globalCells map[string][]byte // backing store for static globals
	code        []byte
	exec        *executableRange

	initFn, finalizeFn string
}

// New parses and lowers source (the curated C subset) into a Module ready
// to receive imports via AddSymbol. The built-in header text is not
// parsed; instead the libc and runtime names it declares are bound as
// resolved symbols here. It does not allocate executable memory; that
// happens in Link.
func New(source string) (*Module, error) {
	diag := &diagnosticSink{}

	p := newParser(source, diag)
	prog := p.parseProgram()
	if diag.has {
		return nil, &CompileError{Message: diag.first}
	}

	mod := lower(prog)

	m := &Module{
		mod:         mod,
		prog:        prog,
		symbols:     map[string]uintptr{},
		globalCells: map[string][]byte{},
	}

	for _, name := range builtinLibcSymbols {
		if addr, ok := resolveLibcSymbol(name); ok {
			m.symbols[name] = addr
		}
	}
	for name, addr := range runtimeShims {
		m.symbols[name] = addr
	}

	for _, fn := range prog.funcs {
		if fn.name == "init" {
			m.initFn = "init"
		}
		if fn.name == "finalize" {
			m.finalizeFn = "finalize"
		}
	}

	return m, nil
}

// AddSymbol registers an externally-resolved import (a host function or
// data address the module's `extern` declarations refer to). It is only
// valid before Link.
func (m *Module) AddSymbol(name string, address uintptr) error {
	if m.state != stateCompiled {
		return &ErrInvalidOperation{Op: "AddSymbol", Reason: "module already linked"}
	}
	m.symbols[name] = address
	return nil
}

// Link allocates backing storage for the module's static globals,
// generates native code for every function, relocates it into an
// executable page, and — if the module defines one — calls its `init`
// function. After a successful Link, FindSymbol resolves function entry
// points and AddSymbol is no longer permitted.
func (m *Module) Link() error {
	if m.state != stateCompiled {
		return &ErrInvalidOperation{Op: "Link", Reason: "module already linked or freed"}
	}

	for _, g := range m.mod.Globals {
		cell := make([]byte, 8)
		m.globalCells[g.Name] = cell
		m.symbols["@global:"+g.Name] = uintptr(ptrOf(cell))
	}

	code, funcOffsets, err := generateCode(m.mod, m.symbols)
	if err != nil {
		return &LinkError{Message: err.Error()}
	}
	m.code = code

	exec, err := allocateExecutable(code)
	if err != nil {
		return &LinkError{Message: err.Error()}
	}
	m.exec = exec

	m.exports = map[string]uintptr{}
	for name, off := range funcOffsets {
		m.exports[name] = exec.base + uintptr(off)
	}

	activeCloak.AddRange(exec.base, exec.size)
	m.state = stateLinked

	if m.initFn != "" {
		if fn, ok := m.exports[m.initFn]; ok {
			callCFunc1(fn, nil)
		}
	}

	log.Debug("module linked", logFields(m)...)
	return nil
}

// FindSymbol returns the relocated address of a module-defined function,
// or 0 if name is not defined or Link has not yet succeeded.
func (m *Module) FindSymbol(name string) uintptr {
	if m.state != stateLinked {
		return 0
	}
	return m.exports[name]
}

// Free runs the module's `finalize` function if defined, unregisters its
// executable range from the Cloak, and releases the underlying memory.
// A freed Module must not be used again.
func (m *Module) Free() error {
	if m.state == stateFreed {
		return &ErrInvalidOperation{Op: "Free", Reason: "module already freed"}
	}
	if m.state == stateLinked {
		if m.finalizeFn != "" {
			if fn, ok := m.exports[m.finalizeFn]; ok {
				callCFunc1(fn, nil)
			}
		}
		activeCloak.RemoveRange(m.exec.base)
		if err := m.exec.free(); err != nil {
			return fmt.Errorf("compiler: free: %w", err)
		}
	}
	m.state = stateFreed
	return nil
}

// generateCode picks the native backend for the running architecture.
// Non-generated builds (anything other than amd64/arm64) have no backend
// registered and Link reports a LinkError. Each backend's init()
// overwrites this with its own generator.
var generateCode = func(mod *IRModule, symbols map[string]uintptr) ([]byte, map[string]int, error) {
	return nil, nil, fmt.Errorf("compiler: no code generator registered for this architecture")
}

func ptrOf(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

func logFields(m *Module) []zap.Field {
	return []zap.Field{
		zap.Int("functions", len(m.mod.Funcs)),
		zap.Int("globals", len(m.mod.Globals)),
		zap.Int("codeBytes", len(m.code)),
	}
}
