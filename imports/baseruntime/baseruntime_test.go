package baseruntime

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/internal/wasm"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

// guestModuleWritingMemory encodes a module with a one-page memory, a "hello"
// data segment at offset 0, and an export calling baseruntime.write(fd, 0, 5).
func guestModuleWritingMemory() []byte {
	writeSig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	emit := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	return binary.EncodeModule(&wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{writeSig, emit}},
			{ID: wasm.SectionIDImport, Imports: []*wasm.Import{
				{Module: ModuleName, Name: "write", Kind: wasm.ExternalKindFunction, DescFunc: 0},
			}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{1}},
			{ID: wasm.SectionIDMemory, Memories: []*wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}},
			{ID: wasm.SectionIDData, Data: []*wasm.DataSegment{
				{Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, I32: 0}, Init: []byte("hello")},
			}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeLocalGet, Index: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 5},
					{Opcode: wasm.OpcodeCall, FuncIndex: 0},
				},
			}}},
			{ID: wasm.SectionIDExport, Exports: []*wasm.Export{
				{Name: "emit", Kind: wasm.ExternalKindFunction, Index: 1},
			}},
		},
	})
}

func TestInstantiate_WriteWritesGuestMemoryToConfiguredStream(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)

	var stdout bytes.Buffer
	_, err := Instantiate(ctx, r, WithStdout(&stdout))
	require.NoError(t, err)

	compiled, err := r.CompileModule(ctx, guestModuleWritingMemory())
	require.NoError(t, err)
	mod, err := r.InstantiateModule(ctx, compiled, vela.NewModuleConfig())
	require.NoError(t, err)

	results, err := mod.ExportedFunction("emit").Call(ctx, api.EncodeI32(fdStdout))
	require.NoError(t, err)
	require.Equal(t, int32(5), api.DecodeI32(results[0]))
	require.Equal(t, "hello", stdout.String())
}

func TestInstantiate_WriteRejectsUnknownFd(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)

	_, err := Instantiate(ctx, r)
	require.NoError(t, err)

	compiled, err := r.CompileModule(ctx, guestModuleWritingMemory())
	require.NoError(t, err)
	mod, err := r.InstantiateModule(ctx, compiled, vela.NewModuleConfig())
	require.NoError(t, err)

	results, err := mod.ExportedFunction("emit").Call(ctx, api.EncodeI32(99))
	require.NoError(t, err)
	require.Equal(t, int32(-1), api.DecodeI32(results[0]))
}

func TestInstantiate_ReadFillsGuestMemoryFromConfiguredStream(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)

	_, err := Instantiate(ctx, r, WithStdin(strings.NewReader("hi")))
	require.NoError(t, err)

	readSig := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	emit := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	guest := binary.EncodeModule(&wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{readSig, emit}},
			{ID: wasm.SectionIDImport, Imports: []*wasm.Import{
				{Module: ModuleName, Name: "read", Kind: wasm.ExternalKindFunction, DescFunc: 0},
			}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{1}},
			{ID: wasm.SectionIDMemory, Memories: []*wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeI32Const, I32: fdStdin},
					{Opcode: wasm.OpcodeI32Const, I32: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 2},
					{Opcode: wasm.OpcodeCall, FuncIndex: 0},
				},
			}}},
			{ID: wasm.SectionIDExport, Exports: []*wasm.Export{
				{Name: "slurp", Kind: wasm.ExternalKindFunction, Index: 1},
				{Name: "memory", Kind: wasm.ExternalKindMemory, Index: 0},
			}},
		},
	})

	compiled, err := r.CompileModule(ctx, guest)
	require.NoError(t, err)
	mod, err := r.InstantiateModule(ctx, compiled, vela.NewModuleConfig())
	require.NoError(t, err)

	results, err := mod.ExportedFunction("slurp").Call(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), api.DecodeI32(results[0]))

	data, ok := mod.ExportedMemory("memory").Read(0, 2)
	require.True(t, ok)
	require.Equal(t, []byte("hi"), data)
}
