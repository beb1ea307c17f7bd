package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ExternType classifies an instance-time export or import, mirroring
// ExternalKind but at the level of live objects rather than binary tags.
type ExternType = ExternalKind

// ModuleInstance is the runtime representation of an instantiated module:
// its resolved imports, allocated storage, and export table. Every type
// whose name ends in "Instance" belongs to exactly one ModuleInstance (or,
// for imports, to the ModuleInstance that defined it).
//
// See https://webassembly.github.io/spec/core/exec/runtime.html#module-instances
type ModuleInstance struct {
	Name string

	Types     []*FunctionType
	Functions []*FunctionInstance
	Globals   []*GlobalInstance
	Tables    []*TableInstance
	Memory    *MemoryInstance

	Exports map[string]*ExportInstance
}

// FunctionInstance is either a module-defined function (Body non-nil) or a
// host function bound in by an Importer (Host non-nil); never both.
//
// See https://webassembly.github.io/spec/core/exec/runtime.html#function-instances
type FunctionInstance struct {
	DebugName string
	Type      *FunctionType

	// Module-defined function fields.
	Module     *ModuleInstance
	LocalTypes []ValueType
	Body       []Instruction

	// Host function fields.
	Host HostFunction
}

// HostFunction is a Go-implemented function instance. It receives the
// context.Context the top-level Engine.Call was invoked with, the
// ModuleInstance that performed the call (nil if invoked directly rather
// than via a `call`/`call_indirect` instruction), and already type-checked
// arguments (one interface{} per Type.Params entry, each one of
// int32/int64/float32/float64). It returns one value per Type.Results
// entry, or a *Trap. ctx and caller mirror the ABI's optional leading
// context.Context and api.Module parameters.
type HostFunction func(ctx context.Context, caller *ModuleInstance, args []interface{}) ([]interface{}, *Trap)

// IsHost reports whether f is a host function rather than a Wasm-defined one.
func (f *FunctionInstance) IsHost() bool {
	return f.Host != nil
}

// GlobalInstance is a single mutable or immutable global variable's storage.
//
// See https://webassembly.github.io/spec/core/exec/runtime.html#global-instances
type GlobalInstance struct {
	Type *Global
	// Val holds the 64-bit bit pattern of the current value: the raw int32/
	// int64, or the IEEE-754 bits of a float32/float64.
	Val uint64

	mu sync.RWMutex
}

// Get reads the global's current bit pattern.
func (g *GlobalInstance) Get() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.Val
}

// Set writes the global's bit pattern. Callers are responsible for checking
// Type.Mutable first; Set itself does not enforce immutability, matching
// the teacher's division of labor between validation and storage.
func (g *GlobalInstance) Set(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Val = v
}

// TableInstance is the MVP's sole table shape: a vector of function
// references (nil for an uninitialized slot), growable up to Limits.Maximum
// when set.
//
// See https://webassembly.github.io/spec/core/exec/runtime.html#table-instances
type TableInstance struct {
	Limits    ResizableLimits
	Functions []*FunctionInstance
}

// Grow attempts to grow the table by delta elements, returning the previous
// size, or -1 if the growth would exceed Limits.Maximum.
func (t *TableInstance) Grow(delta uint32) int32 {
	prev := len(t.Functions)
	next := uint32(prev) + delta
	if t.Limits.Maximum != nil && next > *t.Limits.Maximum {
		return -1
	}
	t.Functions = append(t.Functions, make([]*FunctionInstance, delta)...)
	return int32(prev)
}

// MemoryInstance is a single linear memory's backing buffer, always a
// multiple of MemoryPageSize bytes.
//
// See https://webassembly.github.io/spec/core/exec/runtime.html#memory-instances
type MemoryInstance struct {
	Limits ResizableLimits
	Buffer []byte

	mu sync.RWMutex
}

// NewMemoryInstance allocates a zeroed memory with Limits.Initial pages.
func NewMemoryInstance(limits ResizableLimits) *MemoryInstance {
	return &MemoryInstance{
		Limits: limits,
		Buffer: make([]byte, uint64(limits.Initial)*MemoryPageSize),
	}
}

// PageSize returns the current size of the memory in pages.
func (m *MemoryInstance) PageSize() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.Buffer) / MemoryPageSize)
}

// Grow attempts to grow the memory by delta pages, returning the previous
// size in pages, or -1 if the growth would exceed Limits.Maximum or the
// hard MemoryMaxPages ceiling.
func (m *MemoryInstance) Grow(delta uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := uint32(len(m.Buffer) / MemoryPageSize)
	next := prev + delta
	if next > MemoryMaxPages {
		return -1
	}
	if m.Limits.Maximum != nil && next > *m.Limits.Maximum {
		return -1
	}
	m.Buffer = append(m.Buffer, make([]byte, uint64(delta)*MemoryPageSize)...)
	return int32(prev)
}

// Read returns a copy of count bytes starting at offset, or an error if the
// range falls outside the current buffer.
func (m *MemoryInstance) Read(offset, count uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := uint64(offset) + uint64(count)
	if end > uint64(len(m.Buffer)) {
		return nil, errors.Errorf("out of bounds memory access: offset=%d count=%d size=%d", offset, count, len(m.Buffer))
	}
	out := make([]byte, count)
	copy(out, m.Buffer[offset:end])
	return out, nil
}

// Write overwrites count bytes starting at offset with data, or errors if
// the range falls outside the current buffer.
func (m *MemoryInstance) Write(offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.Buffer)) {
		return errors.Errorf("out of bounds memory access: offset=%d count=%d size=%d", offset, len(data), len(m.Buffer))
	}
	copy(m.Buffer[offset:end], data)
	return nil
}

// ExportInstance is one entry of a ModuleInstance's export table. Only the
// field matching Type is populated.
//
// See https://webassembly.github.io/spec/core/exec/runtime.html#export-instances
type ExportInstance struct {
	Type     ExternType
	Function *FunctionInstance
	Global   *GlobalInstance
	Memory   *MemoryInstance
	Table    *TableInstance
}

// GetExport looks up name in the module's export table, erroring if absent
// or of the wrong kind.
func (m *ModuleInstance) GetExport(name string, kind ExternType) (*ExportInstance, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, errors.Errorf("%q is not exported by module %q", name, m.Name)
	}
	if exp.Type != kind {
		return nil, errors.Errorf("export %q in module %q is a %s, not a %s",
			name, m.Name, ExternalKindName(exp.Type), ExternalKindName(kind))
	}
	return exp, nil
}

// buildExports populates m.Exports from the module's Export section, after
// m.Functions/Globals/Tables/Memory have been assembled.
func (m *ModuleInstance) buildExports(exports []*Export) {
	m.Exports = make(map[string]*ExportInstance, len(exports))
	for _, exp := range exports {
		var ei *ExportInstance
		switch exp.Kind {
		case ExternalKindFunction:
			ei = &ExportInstance{Type: exp.Kind, Function: m.Functions[exp.Index]}
		case ExternalKindGlobal:
			ei = &ExportInstance{Type: exp.Kind, Global: m.Globals[exp.Index]}
		case ExternalKindMemory:
			ei = &ExportInstance{Type: exp.Kind, Memory: m.Memory}
		case ExternalKindTable:
			ei = &ExportInstance{Type: exp.Kind, Table: m.Tables[exp.Index]}
		}
		m.Exports[exp.Name] = ei
	}
}

// Trap represents an abnormal termination of execution: a distinguished
// error that unwinds the interpreter without being recoverable as a value,
// as opposed to a Go error returned from host-side plumbing (decode, link).
//
// See https://webassembly.github.io/spec/core/intro/overview.html#trap
type Trap struct {
	Code    TrapCode
	Message string
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap: %s", t.Message)
}

// TrapCode classifies a Trap for callers that want to branch on trap kind
// rather than match on message text.
type TrapCode int

const (
	TrapCodeUnreachable TrapCode = iota
	TrapCodeOutOfBoundsMemoryAccess
	TrapCodeOutOfBoundsTableAccess
	TrapCodeIntegerDivideByZero
	TrapCodeIntegerOverflow
	TrapCodeInvalidConversionToInteger
	TrapCodeIndirectCallTypeMismatch
	TrapCodeUninitializedElement
	TrapCodeCallStackExhausted
)

// NewTrap builds a Trap with a formatted message.
func NewTrap(code TrapCode, format string, args ...interface{}) *Trap {
	return &Trap{Code: code, Message: fmt.Sprintf(format, args...)}
}
