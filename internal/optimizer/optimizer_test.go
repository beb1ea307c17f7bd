package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela/internal/wasm"
)

func TestRunRules_TeeLocalFusion(t *testing.T) {
	in := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, I32: 1},
		{Opcode: wasm.OpcodeLocalSet, Index: 2},
		{Opcode: wasm.OpcodeLocalGet, Index: 2},
		{Opcode: wasm.OpcodeI32Add},
	}
	out := runRules(in)
	require.Equal(t, []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, I32: 1},
		{Opcode: wasm.OpcodeLocalTee, Index: 2},
		{Opcode: wasm.OpcodeI32Add},
	}, out)
}

func TestRunRules_TeeLocalRequiresSameIndex(t *testing.T) {
	in := []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalSet, Index: 1},
		{Opcode: wasm.OpcodeLocalGet, Index: 2},
	}
	out := runRules(in)
	require.Equal(t, in, out)
}

func TestRunRules_UnreachableCodeElimination(t *testing.T) {
	in := []wasm.Instruction{
		{Opcode: wasm.OpcodeReturn},
		{Opcode: wasm.OpcodeI32Const, I32: 99},
		{Opcode: wasm.OpcodeDrop},
	}
	out := runRules(in)
	require.Equal(t, []wasm.Instruction{{Opcode: wasm.OpcodeReturn}}, out)
}

func TestRunRules_TerminatorAtEndIsUnaffected(t *testing.T) {
	in := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, I32: 1},
		{Opcode: wasm.OpcodeReturn},
	}
	out := runRules(in)
	require.Equal(t, in, out)
}

func TestRunRules_DescendsIntoBlockBodies(t *testing.T) {
	in := []wasm.Instruction{
		{
			Opcode: wasm.OpcodeBlock,
			Then: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalSet, Index: 0},
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
			},
		},
	}
	out := runRules(in)
	require.Len(t, out, 1)
	require.Equal(t, []wasm.Instruction{{Opcode: wasm.OpcodeLocalTee, Index: 0}}, out[0].Then)
}

func TestRunRules_DescendsIntoIfThenAndElse(t *testing.T) {
	in := []wasm.Instruction{
		{
			Opcode: wasm.OpcodeIf,
			Then:   []wasm.Instruction{{Opcode: wasm.OpcodeUnreachable}, {Opcode: wasm.OpcodeNop}},
			Else:   []wasm.Instruction{{Opcode: wasm.OpcodeLocalSet, Index: 3}, {Opcode: wasm.OpcodeLocalGet, Index: 3}},
		},
	}
	out := runRules(in)
	require.Equal(t, []wasm.Instruction{{Opcode: wasm.OpcodeUnreachable}}, out[0].Then)
	require.Equal(t, []wasm.Instruction{{Opcode: wasm.OpcodeLocalTee, Index: 3}}, out[0].Else)
}

func TestCompactLocals(t *testing.T) {
	in := []wasm.LocalEntry{
		{Count: 2, Type: wasm.ValueTypeI32},
		{Count: 0, Type: wasm.ValueTypeI64},
		{Count: 1, Type: wasm.ValueTypeI32},
		{Count: 3, Type: wasm.ValueTypeF64},
	}
	out := compactLocals(in)
	require.Equal(t, []wasm.LocalEntry{
		{Count: 3, Type: wasm.ValueTypeI32},
		{Count: 3, Type: wasm.ValueTypeF64},
	}, out)
}

func moduleWithTypesAndFuncs(types []*wasm.FunctionType, funcTypeIndices []uint32, importDescFuncs []uint32) *wasm.Module {
	m := &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: types},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: funcTypeIndices},
		},
	}
	if importDescFuncs != nil {
		imports := make([]*wasm.Import, len(importDescFuncs))
		for i, idx := range importDescFuncs {
			imports[i] = &wasm.Import{Module: "env", Name: "f", Kind: wasm.ExternalKindFunction, DescFunc: idx}
		}
		m.Sections = append(m.Sections, &wasm.Section{ID: wasm.SectionIDImport, Imports: imports})
	}
	return m
}

func TestDedupFunctionTypes(t *testing.T) {
	unary := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	unaryDup := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	binary := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}

	m := moduleWithTypesAndFuncs(
		[]*wasm.FunctionType{unary, binary, unaryDup},
		[]uint32{0, 2, 1},
		[]uint32{2},
	)

	Optimize(m)

	require.Equal(t, []*wasm.FunctionType{unary, binary}, m.TypeSection())
	require.Equal(t, []uint32{0, 0, 1}, m.FunctionSection())
	require.Equal(t, uint32(0), m.ImportSection()[0].DescFunc)
}

func TestOptimize_CompactsLocalsAndRewritesBody(t *testing.T) {
	unary := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	m := &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{unary}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				LocalTypes: []wasm.LocalEntry{
					{Count: 1, Type: wasm.ValueTypeI32},
					{Count: 1, Type: wasm.ValueTypeI32},
				},
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeLocalSet, Index: 0},
					{Opcode: wasm.OpcodeLocalGet, Index: 0},
					{Opcode: wasm.OpcodeReturn},
					{Opcode: wasm.OpcodeNop},
				},
			}}},
		},
	}

	Optimize(m)

	code := m.CodeSection()[0]
	require.Equal(t, []wasm.LocalEntry{{Count: 2, Type: wasm.ValueTypeI32}}, code.LocalTypes)
	require.Equal(t, []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalTee, Index: 0},
		{Opcode: wasm.OpcodeReturn},
	}, code.Body)
}
