package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-wasm/vela/internal/wasm"
)

// encodeNameSectionPayload builds the "name" custom section's content bytes:
// a module-name subsection when moduleName is non-empty, then one
// function-names subsection.
func encodeNameSectionPayload(moduleName string, fnNames wasm.NameMap) []byte {
	w := &writer{}
	if moduleName != "" {
		w.writeByte(subsectionIDModuleName)
		var sub writer
		sub.writeName(moduleName)
		w.writeU32(uint32(len(sub.bytes())))
		w.writeBytes(sub.bytes())
	}
	if len(fnNames) > 0 {
		w.writeByte(subsectionIDFunctionNames)
		var sub writer
		sub.writeU32(uint32(len(fnNames)))
		for _, n := range fnNames {
			sub.writeU32(n.Index)
			sub.writeName(n.Name)
		}
		w.writeU32(uint32(len(sub.bytes())))
		w.writeBytes(sub.bytes())
	}
	return w.bytes()
}

func TestDecodeNameSection(t *testing.T) {
	raw := encodeNameSectionPayload("simple", wasm.NameMap{
		{Index: 0, Name: "main"},
		{Index: 1, Name: "helper"},
	})

	ns, err := decodeNameSection(raw)
	require.NoError(t, err)
	require.Equal(t, "simple", ns.ModuleName)
	require.Equal(t, "main", ns.FunctionNames.Find(0))
	require.Equal(t, "helper", ns.FunctionNames.Find(1))
	require.Equal(t, "", ns.FunctionNames.Find(2))
}

func TestDecodeModule_RecognizesNameSection(t *testing.T) {
	raw := encodeNameSectionPayload("", wasm.NameMap{{Index: 0, Name: "increment"}})
	m := &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDCustom, Name: "name", Raw: raw},
		},
	}

	decoded, err := DecodeModule(EncodeModule(m))
	require.NoError(t, err)

	ns := decoded.NameSection()
	require.NotNil(t, ns)
	require.Equal(t, "increment", ns.FunctionNames.Find(0))
	// Raw survives untouched alongside the parsed form.
	require.Equal(t, raw, decoded.Sections[0].Raw)
}

func TestDecodeModule_UnrecognizedCustomSectionHasNoNames(t *testing.T) {
	m := &wasm.Module{
		Magic: 0x6d736100, Version: 1,
		Sections: []*wasm.Section{
			{ID: wasm.SectionIDCustom, Name: "producers", Raw: []byte{1, 2, 3}},
		},
	}

	decoded, err := DecodeModule(EncodeModule(m))
	require.NoError(t, err)
	require.Nil(t, decoded.NameSection())
}
