package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela/internal/wasm"
)

// TestDecodeModule relies on unit tests for EncodeModule, specifically that
// the encoding is both known and correct. This avoids having to copy/paste
// or share variables to assert against byte arrays.
func TestDecodeModule(t *testing.T) {
	i32, f32 := wasm.ValueTypeI32, wasm.ValueTypeF32

	tests := []struct {
		name  string
		input *wasm.Module
	}{
		{
			name:  "empty",
			input: &wasm.Module{Magic: 0x6d736100, Version: 1},
		},
		{
			name: "only custom section",
			input: &wasm.Module{
				Magic: 0x6d736100, Version: 1,
				Sections: []*wasm.Section{
					{ID: wasm.SectionIDCustom, Name: "meme", Raw: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0}},
				},
			},
		},
		{
			name: "type section",
			input: &wasm.Module{
				Magic: 0x6d736100, Version: 1,
				Sections: []*wasm.Section{
					{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{
						{},
						{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
						{Params: []wasm.ValueType{i32, i32, i32, i32}, Results: []wasm.ValueType{i32}},
					}},
				},
			},
		},
		{
			name: "type and import section",
			input: &wasm.Module{
				Magic: 0x6d736100, Version: 1,
				Sections: []*wasm.Section{
					{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{
						{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
						{Params: []wasm.ValueType{f32, f32}, Results: []wasm.ValueType{f32}},
					}},
					{ID: wasm.SectionIDImport, Imports: []*wasm.Import{
						{Module: "Math", Name: "Mul", Kind: wasm.ExternalKindFunction, DescFunc: 1},
						{Module: "Math", Name: "Add", Kind: wasm.ExternalKindFunction, DescFunc: 0},
					}},
				},
			},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m, err := DecodeModule(EncodeModule(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.input, m)
		})
	}
}

func TestDecodeModule_AcceptsPreMvpVersion(t *testing.T) {
	m, err := DecodeModule([]byte("\x00asm\x0d\x00\x00\x00"))
	require.NoError(t, err)
	require.Equal(t, uint32(0x0d), m.Version)
}

func TestEncodeModule_PreservesModuleVersion(t *testing.T) {
	m := &wasm.Module{Magic: 0x6d736100, Version: 0x0d}
	encoded := EncodeModule(m)
	decoded, err := DecodeModule(encoded)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0d), decoded.Version)
}

func TestDecodeModule_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectedErr string
	}{
		{
			name:        "wrong magic",
			input:       []byte("wasm\x01\x00\x00\x00"),
			expectedErr: "invalid magic number",
		},
		{
			name:        "wrong version",
			input:       []byte("\x00asm\x01\x00\x00\x01"),
			expectedErr: "invalid version header",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeModule(tc.input)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestDecodeModule_CodeRoundTrip(t *testing.T) {
	m := &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{
				{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
			}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{
				{
					LocalTypes: []wasm.LocalEntry{{Count: 1, Type: wasm.ValueTypeI32}},
					Body: []wasm.Instruction{
						{Opcode: wasm.OpcodeLocalGet, Index: 0},
						{Opcode: wasm.OpcodeLocalGet, Index: 1},
						{Opcode: wasm.OpcodeI32Add},
					},
				},
			}},
		},
	}

	decoded, err := DecodeModule(EncodeModule(m))
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestDecodeModule_BlockRoundTrip(t *testing.T) {
	m := &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDType, Types: []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}}},
			{ID: wasm.SectionIDFunction, FunctionTypeIndices: []uint32{0}},
			{ID: wasm.SectionIDCode, Codes: []*wasm.Code{
				{
					Body: []wasm.Instruction{
						{
							Opcode:       wasm.OpcodeIf,
							HasBlockType: true,
							BlockType:    wasm.LanguageType(wasm.ValueTypeI32),
							Then:         []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, I32: 1}},
							Else:         []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, I32: 0}},
						},
					},
				},
			}},
		},
	}

	decoded, err := DecodeModule(EncodeModule(m))
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}
