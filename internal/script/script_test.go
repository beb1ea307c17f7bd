package script

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela"
	"github.com/vela-wasm/vela/internal/wasm"
	"github.com/vela-wasm/vela/internal/wasm/binary"
)

// addOneModule encodes a module with one export, "increment": i32 -> i32+1.
func addOneModule() []byte {
	unary := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	return binary.EncodeModule(&wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{unary}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeLocalGet, Index: 0},
					{Opcode: wasm.OpcodeI32Const, I32: 1},
					{Opcode: wasm.OpcodeI32Add},
				},
			}}},
			{ID: wasm.SectionIDExport, Exports: []*wasm.Export{
				{Name: "increment", Kind: wasm.ExternalKindFunction, Index: 0},
			}},
		},
	})
}

// divByZeroModule encodes a module with one export, "divByZero": () -> i32,
// that always traps with an integer divide by zero.
func divByZeroModule() []byte {
	nullary := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	return binary.EncodeModule(&wasm.Module{
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{nullary}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{{
				Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeI32Const, I32: 1},
					{Opcode: wasm.OpcodeI32Const, I32: 0},
					{Opcode: wasm.OpcodeI32DivS},
				},
			}}},
			{ID: wasm.SectionIDExport, Exports: []*wasm.Export{
				{Name: "divByZero", Kind: wasm.ExternalKindFunction, Index: 0},
			}},
		},
	})
}

func newFS(t *testing.T, files map[string][]byte) afero.Fs {
	fsys := afero.NewMemMapFs()
	for name, contents := range files {
		require.NoError(t, afero.WriteFile(fsys, name, contents, 0o644))
	}
	return fsys
}

func TestRun_ModuleInvokeAssertReturn(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)
	fsys := newFS(t, map[string][]byte{"add.wasm": addOneModule()})

	m := &Manifest{
		SourceFile: "add.wast",
		Commands: []Command{
			{Type: "module", Line: 1, Filename: "add.wasm"},
			{
				Type: "assert_return", Line: 2,
				Action:   &Action{Type: "invoke", Field: "increment", Args: []TypedValue{{Type: "i32", Value: "41"}}},
				Expected: []TypedValue{{Type: "i32", Value: "42"}},
			},
		},
	}

	Run(t, ctx, r, fsys, ".", m)
}

func TestRun_AssertTrap(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)
	fsys := newFS(t, map[string][]byte{"trap.wasm": divByZeroModule()})

	m := &Manifest{
		SourceFile: "trap.wast",
		Commands: []Command{
			{Type: "module", Line: 1, Filename: "trap.wasm"},
			{
				Type: "assert_trap", Line: 2,
				Action: &Action{Type: "invoke", Field: "divByZero"},
				Text:   "integer divide by zero",
			},
		},
	}

	Run(t, ctx, r, fsys, ".", m)
}

func TestRun_RegisterAliasesModuleForLaterActions(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)
	fsys := newFS(t, map[string][]byte{"add.wasm": addOneModule()})

	m := &Manifest{
		SourceFile: "alias.wast",
		Commands: []Command{
			{Type: "module", Line: 1, Name: "original", Filename: "add.wasm"},
			{Type: "register", Line: 2, Name: "original", As: "aliased"},
			{
				Type: "assert_return", Line: 3,
				Action:   &Action{Type: "invoke", Module: "aliased", Field: "increment", Args: []TypedValue{{Type: "i32", Value: "1"}}},
				Expected: []TypedValue{{Type: "i32", Value: "2"}},
			},
		},
	}

	Run(t, ctx, r, fsys, ".", m)
}

func TestRun_AssertInvalidRejectsMalformedBinary(t *testing.T) {
	ctx := context.Background()
	r := vela.NewRuntime(ctx)
	fsys := newFS(t, map[string][]byte{"bad.wasm": {0x00, 0x01, 0x02, 0x03}})

	m := &Manifest{
		SourceFile: "bad.wast",
		Commands: []Command{
			{Type: "assert_invalid", Line: 1, Filename: "bad.wasm"},
		},
	}

	Run(t, ctx, r, fsys, ".", m)
}

func TestMatch_NaNClassesIgnoreSignAndPayload(t *testing.T) {
	ok, err := match(TypedValue{Type: "f32", Value: "nan:canonical"}, uint64(0xffc00001))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = match(TypedValue{Type: "f32", Value: "nan:arithmetic"}, uint64(0x7fc00000))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = match(TypedValue{Type: "f32", Value: "nan:canonical"}, uint64(0x7f800000))
	require.NoError(t, err)
	require.False(t, ok, "plain infinity is not a NaN")
}
