package dump

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela/internal/wasm"
)

func addModule() *wasm.Module {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	return &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{sig}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeLocalGet, Index: 0},
					{Opcode: wasm.OpcodeLocalGet, Index: 1},
					{Opcode: wasm.OpcodeI32Add},
				},
			}}},
			{ID: wasm.SectionIDExport, Exports: []*wasm.Export{{Name: "add", Kind: wasm.ExternalKindFunction, Index: 0}}},
		},
	}
}

func TestString_RendersTypeAndFunctionAndExport(t *testing.T) {
	out := String(addModule())
	require.Contains(t, out, "(module ;; version 1")
	require.Contains(t, out, "(type (;0;) (param i32 i32) (result i32))")
	require.Contains(t, out, "(func (;0;) (param i32 i32) (result i32)")
	require.Contains(t, out, "local.get 0")
	require.Contains(t, out, "i32.add")
	require.Contains(t, out, `(export "add" (func 0))`)
}

func TestString_RendersNestedBlock(t *testing.T) {
	m := &wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{
						Opcode:       wasm.OpcodeBlock,
						HasBlockType: true,
						BlockType:    wasm.LanguageType(wasm.ValueTypeI32),
						Then: []wasm.Instruction{
							{Opcode: wasm.OpcodeI32Const, I32: 1},
						},
					},
				},
			}}},
		},
	}
	out := String(m)
	require.Contains(t, out, "block (result i32)")
	require.Contains(t, out, "i32.const 1")
	require.Contains(t, out, "end")
}

func TestString_RendersIfElse(t *testing.T) {
	m := &wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{
						Opcode: wasm.OpcodeIf,
						Then:   []wasm.Instruction{{Opcode: wasm.OpcodeNop}},
						Else:   []wasm.Instruction{{Opcode: wasm.OpcodeUnreachable}},
					},
				},
			}}},
		},
	}
	out := String(m)
	require.Contains(t, out, "if")
	require.Contains(t, out, "nop")
	require.Contains(t, out, "else")
	require.Contains(t, out, "unreachable")
}

func TestString_RendersMemoryTableGlobalData(t *testing.T) {
	max := uint32(4)
	m := &wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDTable, Tables: []*wasm.Table{{Limits: wasm.ResizableLimits{Initial: 1}}}},
			{ID: wasm.SectionIDMemory, Memories: []*wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1, Maximum: &max}}}},
			{ID: wasm.SectionIDGlobal, Globals: []*wasm.Global{{
				Type: wasm.ValueTypeI32, Mutable: true,
				Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, I32: 7},
			}}},
			{ID: wasm.SectionIDData, Data: []*wasm.DataSegment{{
				Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, I32: 0},
				Init:   []byte("hi"),
			}}},
		},
	}
	out := String(m)
	require.Contains(t, out, "(table (;0;) 1 anyfunc)")
	require.Contains(t, out, "(memory (;0;) 1 4)")
	require.Contains(t, out, "(global (;0;) i32 mutable (i32.const 7))")
	require.Contains(t, out, `(data (;0;) (offset i32.const 0) "hi")`)
}
