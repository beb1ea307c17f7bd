package vela

import (
	"context"
	"fmt"

	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/internal/engine/interpreter"
	"github.com/vela-wasm/vela/internal/wasm"
)

// moduleInstance adapts a *wasm.ModuleInstance, plus the engine that can run
// its functions, to the public api.Module surface.
type moduleInstance struct {
	inst   *wasm.ModuleInstance
	engine *interpreter.Engine
}

var _ api.Module = (*moduleInstance)(nil)

func (m *moduleInstance) String() string { return fmt.Sprintf("Module[%s]", m.inst.Name) }

func (m *moduleInstance) Name() string { return m.inst.Name }

// Close is a no-op: the interpreter holds no per-module OS resources. It
// exists so moduleInstance satisfies api.Closer, mirroring the teacher's
// module lifecycle even though vela has nothing to release.
func (m *moduleInstance) Close(ctx context.Context) error { return nil }

func (m *moduleInstance) Memory() api.Memory {
	if m.inst.Memory == nil {
		return nil
	}
	return &moduleMemory{m.inst.Memory}
}

func (m *moduleInstance) ExportedFunction(name string) api.Function {
	exp, err := m.inst.GetExport(name, wasm.ExternalKindFunction)
	if err != nil {
		return nil
	}
	return &moduleFunction{fn: exp.Function, engine: m.engine}
}

func (m *moduleInstance) ExportedMemory(name string) api.Memory {
	exp, err := m.inst.GetExport(name, wasm.ExternalKindMemory)
	if err != nil {
		return nil
	}
	return &moduleMemory{exp.Memory}
}

func (m *moduleInstance) ExportedGlobal(name string) api.Global {
	exp, err := m.inst.GetExport(name, wasm.ExternalKindGlobal)
	if err != nil {
		return nil
	}
	return &moduleGlobal{exp.Global}
}

// moduleFunction adapts a *wasm.FunctionInstance to api.Function.
type moduleFunction struct {
	fn     *wasm.FunctionInstance
	engine *interpreter.Engine
}

var _ api.Function = (*moduleFunction)(nil)

func (f *moduleFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results, trap := f.engine.Call(ctx, f.fn, params)
	if trap != nil {
		return nil, trap
	}
	return results, nil
}

// moduleGlobal adapts a *wasm.GlobalInstance to api.Global/api.MutableGlobal.
type moduleGlobal struct {
	g *wasm.GlobalInstance
}

var (
	_ api.Global        = (*moduleGlobal)(nil)
	_ api.MutableGlobal = (*moduleGlobal)(nil)
)

func (g *moduleGlobal) String() string {
	return fmt.Sprintf("%s(%v)", api.ValueTypeName(api.ValueType(g.g.Type.Type)), g.g.Get())
}

func (g *moduleGlobal) Type() api.ValueType { return api.ValueType(g.g.Type.Type) }
func (g *moduleGlobal) Get() uint64         { return g.g.Get() }
func (g *moduleGlobal) Set(v uint64)        { g.g.Set(v) }

// moduleMemory adapts a *wasm.MemoryInstance to api.Memory.
type moduleMemory struct {
	mem *wasm.MemoryInstance
}

var _ api.Memory = (*moduleMemory)(nil)

func (m *moduleMemory) Size() uint32 { return uint32(len(m.mem.Buffer)) }

func (m *moduleMemory) Grow(deltaPages uint32) (uint32, bool) {
	prev := m.mem.Grow(deltaPages)
	if prev < 0 {
		return 0, false
	}
	return uint32(prev), true
}

func (m *moduleMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.mem.Buffer)) {
		return nil, false
	}
	return m.mem.Buffer[offset:end:end], true
}

func (m *moduleMemory) ReadByte(offset uint32) (byte, bool) {
	b, ok := m.Read(offset, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (m *moduleMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	b, ok := m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return leU32(b), true
}

func (m *moduleMemory) ReadUint64Le(offset uint32) (uint64, bool) {
	b, ok := m.Read(offset, 8)
	if !ok {
		return 0, false
	}
	return leU64(b), true
}

func (m *moduleMemory) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	if !ok {
		return 0, false
	}
	return api.DecodeF32(uint64(v)), true
}

func (m *moduleMemory) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	if !ok {
		return 0, false
	}
	return api.DecodeF64(v), true
}

func (m *moduleMemory) Write(offset uint32, v []byte) bool {
	return m.mem.Write(offset, v) == nil
}

func (m *moduleMemory) WriteByte(offset uint32, v byte) bool {
	return m.Write(offset, []byte{v})
}

func (m *moduleMemory) WriteUint32Le(offset, v uint32) bool {
	return m.Write(offset, leBytes32(v))
}

func (m *moduleMemory) WriteUint64Le(offset uint32, v uint64) bool {
	return m.Write(offset, leBytes64(v))
}

func (m *moduleMemory) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, uint32(api.EncodeF32(v)))
}

func (m *moduleMemory) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, api.EncodeF64(v))
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leBytes32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func leBytes64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}
