package binary

import (
	"github.com/vela-wasm/vela/internal/wasm"
)

// EncodeModule serializes m back into the binary format. Sections are
// emitted in m.Sections' order, each with a canonical (minimal-length)
// LEB128 payload_length prefix, followed by the section's recognized
// content and then its ExtraPayload verbatim, reproducing a decoded
// module's original bytes exactly.
func EncodeModule(m *wasm.Module) []byte {
	w := &writer{}
	w.writeBytes(magicNumber[:])
	version := m.Version
	if version == 0 {
		version = leBytesToU32(mvpVersion)
	}
	w.writeRawU32(version)

	for _, sec := range m.Sections {
		body := encodeSectionBody(sec)
		w.writeByte(byte(sec.ID))
		w.writeU32(uint32(len(body)))
		w.writeBytes(body)
	}
	return w.bytes()
}

func encodeSectionBody(sec *wasm.Section) []byte {
	w := &writer{}

	switch sec.ID {
	case wasm.SectionIDCustom:
		w.writeName(sec.Name)
		w.writeBytes(sec.Raw)
		return w.bytes()

	case wasm.SectionIDType:
		w.writeU32(uint32(len(sec.Types)))
		for _, ft := range sec.Types {
			encodeFunctionType(w, ft)
		}

	case wasm.SectionIDImport:
		w.writeU32(uint32(len(sec.Imports)))
		for _, imp := range sec.Imports {
			encodeImport(w, imp)
		}

	case wasm.SectionIDFunction:
		w.writeU32(uint32(len(sec.FunctionTypeIndices)))
		for _, idx := range sec.FunctionTypeIndices {
			w.writeU32(idx)
		}

	case wasm.SectionIDTable:
		w.writeU32(uint32(len(sec.Tables)))
		for _, t := range sec.Tables {
			w.writeByte(byte(wasm.LanguageTypeAnyFunc))
			w.writeLimits(t.Limits)
		}

	case wasm.SectionIDMemory:
		w.writeU32(uint32(len(sec.Memories)))
		for _, mem := range sec.Memories {
			w.writeLimits(mem.Limits)
		}

	case wasm.SectionIDGlobal:
		w.writeU32(uint32(len(sec.Globals)))
		for _, g := range sec.Globals {
			encodeGlobal(w, g)
		}

	case wasm.SectionIDExport:
		w.writeU32(uint32(len(sec.Exports)))
		for _, exp := range sec.Exports {
			encodeExport(w, exp)
		}

	case wasm.SectionIDStart:
		w.writeU32(*sec.Start)

	case wasm.SectionIDElement:
		w.writeU32(uint32(len(sec.Elements)))
		for _, el := range sec.Elements {
			encodeElementSegment(w, el)
		}

	case wasm.SectionIDCode:
		w.writeU32(uint32(len(sec.Codes)))
		for _, c := range sec.Codes {
			encodeCode(w, c)
		}

	case wasm.SectionIDData:
		w.writeU32(uint32(len(sec.Data)))
		for _, d := range sec.Data {
			encodeDataSegment(w, d)
		}

	default:
		w.writeBytes(sec.Raw)
		return w.bytes()
	}

	w.writeBytes(sec.ExtraPayload)
	return w.bytes()
}

func encodeFunctionType(w *writer, ft *wasm.FunctionType) {
	w.writeByte(byte(wasm.LanguageTypeFunc))
	w.writeU32(uint32(len(ft.Params)))
	for _, p := range ft.Params {
		w.writeByte(byte(p))
	}
	w.writeU32(uint32(len(ft.Results)))
	for _, r := range ft.Results {
		w.writeByte(byte(r))
	}
}

func encodeImport(w *writer, imp *wasm.Import) {
	w.writeName(imp.Module)
	w.writeName(imp.Name)
	w.writeByte(byte(imp.Kind))
	switch imp.Kind {
	case wasm.ExternalKindFunction:
		w.writeU32(imp.DescFunc)
	case wasm.ExternalKindTable:
		w.writeByte(byte(wasm.LanguageTypeAnyFunc))
		w.writeLimits(imp.DescTable.Limits)
	case wasm.ExternalKindMemory:
		w.writeLimits(imp.DescMem.Limits)
	case wasm.ExternalKindGlobal:
		w.writeByte(byte(imp.DescGlobal.Type))
		w.writeByte(boolByte(imp.DescGlobal.Mutable))
	}
}

func encodeGlobal(w *writer, g *wasm.Global) {
	w.writeByte(byte(g.Type))
	w.writeByte(boolByte(g.Mutable))
	encodeConstExpr(w, g.Init)
}

func encodeExport(w *writer, exp *wasm.Export) {
	w.writeName(exp.Name)
	w.writeByte(byte(exp.Kind))
	w.writeU32(exp.Index)
}

func encodeElementSegment(w *writer, el *wasm.ElementSegment) {
	w.writeU32(el.TableIndex)
	encodeConstExpr(w, el.Offset)
	w.writeU32(uint32(len(el.Init)))
	for _, idx := range el.Init {
		w.writeU32(idx)
	}
}

func encodeDataSegment(w *writer, d *wasm.DataSegment) {
	w.writeU32(d.MemoryIndex)
	encodeConstExpr(w, d.Offset)
	w.writeU32(uint32(len(d.Init)))
	w.writeBytes(d.Init)
}

func encodeCode(w *writer, c *wasm.Code) {
	body := &writer{}
	body.writeU32(uint32(len(c.LocalTypes)))
	for _, l := range c.LocalTypes {
		body.writeU32(l.Count)
		body.writeByte(byte(l.Type))
	}
	encodeInstructions(body, c.Body)
	body.writeBytes(c.BodyExtraPayload)

	w.writeU32(uint32(len(body.bytes())))
	w.writeBytes(body.bytes())
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
