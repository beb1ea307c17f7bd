package interpreter

import (
	"context"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela/internal/ieee754"
	"github.com/vela-wasm/vela/internal/wasm"
)

func addFunc() *wasm.FunctionInstance {
	return &wasm.FunctionInstance{
		DebugName:  "add",
		Type:       &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		LocalTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32Add},
		},
	}
}

func TestEngine_Call_Add(t *testing.T) {
	e := NewEngine()
	results, trap := e.Call(context.Background(), addFunc(), []uint64{uint64(uint32(40)), uint64(uint32(2))})
	require.Nil(t, trap)
	require.Equal(t, []uint64{42}, results)
}

func TestEngine_Call_DivideByZeroTraps(t *testing.T) {
	fn := &wasm.FunctionInstance{
		Type:       &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		LocalTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32DivS},
		},
	}
	e := NewEngine()
	_, trap := e.Call(context.Background(), fn, []uint64{10, 0})
	require.NotNil(t, trap)
	require.Equal(t, wasm.TrapCodeIntegerDivideByZero, trap.Code)
}

func TestEngine_Call_Unreachable(t *testing.T) {
	fn := &wasm.FunctionInstance{
		Type: &wasm.FunctionType{},
		Body: []wasm.Instruction{{Opcode: wasm.OpcodeUnreachable}},
	}
	e := NewEngine()
	_, trap := e.Call(context.Background(), fn, nil)
	require.NotNil(t, trap)
	require.Equal(t, wasm.TrapCodeUnreachable, trap.Code)
}

// A block containing a forward br that skips the remaining instruction.
func TestEngine_Call_BlockBranch(t *testing.T) {
	fn := &wasm.FunctionInstance{
		Type:       &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		LocalTypes: []wasm.ValueType{},
		Body: []wasm.Instruction{
			{
				Opcode:       wasm.OpcodeBlock,
				HasBlockType: true,
				BlockType:    wasm.LanguageType(wasm.ValueTypeI32),
				Then: []wasm.Instruction{
					{Opcode: wasm.OpcodeI32Const, I32: 1},
					{Opcode: wasm.OpcodeBr, LabelIndex: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 99}, // unreachable in practice, never pushed
				},
			},
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), fn, nil)
	require.Nil(t, trap)
	require.Equal(t, []uint64{1}, results)
}

// A loop that counts down from 3 to 0 using br_if to repeat, leaving 0 on
// the stack via a local once the loop exits.
func TestEngine_Call_LoopCountdown(t *testing.T) {
	fn := &wasm.FunctionInstance{
		Type:       &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		LocalTypes: []wasm.ValueType{wasm.ValueTypeI32},
		Body: []wasm.Instruction{
			{
				Opcode: wasm.OpcodeLoop,
				Then: []wasm.Instruction{
					{Opcode: wasm.OpcodeLocalGet, Index: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 1},
					{Opcode: wasm.OpcodeI32Sub},
					{Opcode: wasm.OpcodeLocalTee, Index: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 0},
					{Opcode: wasm.OpcodeI32GtS},
					{Opcode: wasm.OpcodeBrIf, LabelIndex: 0},
				},
			},
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), fn, []uint64{uint64(uint32(3))})
	require.Nil(t, trap)
	require.Equal(t, []uint64{0}, results)
}

func TestEngine_Call_HostFunction(t *testing.T) {
	fn := &wasm.FunctionInstance{
		Type: &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Host: func(ctx context.Context, caller *wasm.ModuleInstance, args []interface{}) ([]interface{}, *wasm.Trap) {
			return []interface{}{args[0].(int32) * 2}, nil
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), fn, []uint64{uint64(uint32(21))})
	require.Nil(t, trap)
	require.Equal(t, uint64(42), results[0])
}

func TestEngine_Call_HostFunctionReadsCallerMemory(t *testing.T) {
	readByte := &wasm.FunctionInstance{
		Type: &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Host: func(ctx context.Context, caller *wasm.ModuleInstance, args []interface{}) ([]interface{}, *wasm.Trap) {
			b, err := caller.Memory.Read(uint32(args[0].(int32)), 1)
			if err != nil {
				return nil, wasm.NewTrap(wasm.TrapCodeOutOfBoundsMemoryAccess, "%v", err)
			}
			return []interface{}{int32(b[0])}, nil
		},
	}
	mem := wasm.NewMemoryInstance(wasm.ResizableLimits{Initial: 1})
	require.NoError(t, mem.Write(0, []byte{0x2a}))

	mod := &wasm.ModuleInstance{Memory: mem}
	caller := &wasm.FunctionInstance{
		Module:     mod,
		Type:       &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		LocalTypes: nil,
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, I32: 0},
			{Opcode: wasm.OpcodeCall, FuncIndex: 0},
		},
	}
	mod.Functions = []*wasm.FunctionInstance{readByte, caller}

	e := NewEngine()
	results, trap := e.Call(context.Background(), caller, nil)
	require.Nil(t, trap)
	require.Equal(t, uint64(0x2a), results[0])
}

func TestEngine_Call_MemoryLoadStore(t *testing.T) {
	mem := wasm.NewMemoryInstance(wasm.ResizableLimits{Initial: 1})
	mod := &wasm.ModuleInstance{Memory: mem}
	fn := &wasm.FunctionInstance{
		Module: mod,
		Type:   &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, I32: 0},
			{Opcode: wasm.OpcodeI32Const, I32: 123},
			{Opcode: wasm.OpcodeI32Store},
			{Opcode: wasm.OpcodeI32Const, I32: 0},
			{Opcode: wasm.OpcodeI32Load},
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), fn, nil)
	require.Nil(t, trap)
	require.Equal(t, []uint64{123}, results)
}

func TestEngine_Call_MemoryLoad_AddressOverflowingU32Traps(t *testing.T) {
	mem := wasm.NewMemoryInstance(wasm.ResizableLimits{Initial: 1})
	mod := &wasm.ModuleInstance{Memory: mem}
	// addr 0xFFFFFFFF + offset 1 == 2^32, which truncates to 0 (squarely
	// in bounds) unless the bounds check happens before narrowing to u32.
	fn := &wasm.FunctionInstance{
		Module: mod,
		Type:   &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, I32: -1},
			{Opcode: wasm.OpcodeI32Load, Mem: wasm.MemArg{Offset: 1}},
		},
	}
	e := NewEngine()
	_, trap := e.Call(context.Background(), fn, nil)
	require.NotNil(t, trap)
	require.Contains(t, trap.Message, "out of bounds")
}

func TestEngine_Call_GlobalGetSet(t *testing.T) {
	g := &wasm.GlobalInstance{Type: &wasm.Global{Type: wasm.ValueTypeI32, Mutable: true}}
	mod := &wasm.ModuleInstance{Globals: []*wasm.GlobalInstance{g}}
	fn := &wasm.FunctionInstance{
		Module: mod,
		Type:   &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, I32: 7},
			{Opcode: wasm.OpcodeGlobalSet, Index: 0},
			{Opcode: wasm.OpcodeGlobalGet, Index: 0},
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), fn, nil)
	require.Nil(t, trap)
	require.Equal(t, []uint64{7}, results)
}

func TestEngine_Call_IndirectCall(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	callee := &wasm.FunctionInstance{
		Type: sig,
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeI32Const, I32: 1},
			{Opcode: wasm.OpcodeI32Add},
		},
		LocalTypes: []wasm.ValueType{wasm.ValueTypeI32},
	}
	mod := &wasm.ModuleInstance{
		Types:  []*wasm.FunctionType{sig},
		Tables: []*wasm.TableInstance{{Functions: []*wasm.FunctionInstance{callee}}},
	}
	caller := &wasm.FunctionInstance{
		Module: mod,
		Type:   &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, I32: 41},
			{Opcode: wasm.OpcodeI32Const, I32: 0},
			{Opcode: wasm.OpcodeCallIndirect, TypeIndex: 0},
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), caller, nil)
	require.Nil(t, trap)
	require.Equal(t, []uint64{42}, results)
}

func TestEngine_Call_IndirectCallTypeMismatchTraps(t *testing.T) {
	wantSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}}
	calleeSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}
	callee := &wasm.FunctionInstance{Type: calleeSig, Body: nil}
	mod := &wasm.ModuleInstance{
		Types:  []*wasm.FunctionType{wantSig},
		Tables: []*wasm.TableInstance{{Functions: []*wasm.FunctionInstance{callee}}},
	}
	caller := &wasm.FunctionInstance{
		Module: mod,
		Type:   &wasm.FunctionType{},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI32Const, I32: 0},
			{Opcode: wasm.OpcodeCallIndirect, TypeIndex: 0},
		},
	}
	e := NewEngine()
	_, trap := e.Call(context.Background(), caller, nil)
	require.NotNil(t, trap)
	require.Equal(t, wasm.TrapCodeIndirectCallTypeMismatch, trap.Code)
}

func TestEngine_Call_F32NaNPropagatesThroughMin(t *testing.T) {
	nan := ieee754.NaN32WithPayload(false, 1)
	fn := &wasm.FunctionInstance{
		Type: &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF32}},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeF32Const, F32: nan},
			{Opcode: wasm.OpcodeF32Const, F32: 1.0},
			{Opcode: wasm.OpcodeF32Min},
		},
	}
	e := NewEngine()
	results, trap := e.Call(context.Background(), fn, nil)
	require.Nil(t, trap)
	require.True(t, math32.IsNaN(ieee754.Float32frombits(uint32(results[0]))))
}

func TestEngine_Call_I32TruncF32SOverflowTraps(t *testing.T) {
	fn := &wasm.FunctionInstance{
		Type: &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeF32Const, F32: 1e20},
			{Opcode: wasm.OpcodeI32TruncF32S},
		},
	}
	e := NewEngine()
	_, trap := e.Call(context.Background(), fn, nil)
	require.NotNil(t, trap)
	require.Equal(t, wasm.TrapCodeIntegerOverflow, trap.Code)
}
