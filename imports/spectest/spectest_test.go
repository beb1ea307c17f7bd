package spectest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/api"
	"github.com/vela-wasm/vela/internal/wasm"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

func TestInstantiate_ExportsExpectedShape(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)

	var out bytes.Buffer
	mod, err := Instantiate(ctx, r, WithWriter(&out))
	require.NoError(t, err)

	require.Equal(t, int32(666), api.DecodeI32(mod.ExportedGlobal("global_i32").Get()))
	require.Equal(t, int64(666), api.DecodeI64(mod.ExportedGlobal("global_i64").Get()))
	require.NotNil(t, mod.ExportedMemory("memory"))
	require.NotNil(t, mod.ExportedFunction("print_i32"))
}

func TestInstantiate_PrintFunctionsAreCallableFromAGuestModule(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)

	var out bytes.Buffer
	_, err := Instantiate(ctx, r, WithWriter(&out))
	require.NoError(t, err)

	unary := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}
	guest := binary.EncodeModule(&wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{unary}},
			{ID: wasm.SectionIDImport, Imports: []*wasm.Import{
				{Module: ModuleName, Name: "print_i32", Kind: wasm.ExternalKindFunction, DescFunc: 0},
			}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeLocalGet, Index: 0},
					{Opcode: wasm.OpcodeCall, FuncIndex: 0},
				},
			}}},
			{ID: wasm.SectionIDExport, Exports: []*wasm.Export{
				{Name: "report", Kind: wasm.ExternalKindFunction, Index: 1},
			}},
		},
	})

	compiled, err := r.CompileModule(ctx, guest)
	require.NoError(t, err)
	mod, err := r.InstantiateModule(ctx, compiled, vela.NewModuleConfig())
	require.NoError(t, err)

	_, err = mod.ExportedFunction("report").Call(ctx, api.EncodeI32(42))
	require.NoError(t, err)
	require.Equal(t, "print_i32 42\n", out.String())
}
