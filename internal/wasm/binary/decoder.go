package binary

import (
	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/wasm"
)

// DecodeModule parses the binary encoding of a WebAssembly module: the
// magic/version header followed by an ordered sequence of sections. Unknown
// section IDs are preserved as opaque Raw bytes rather than rejected, and
// any trailing bytes a known section doesn't need are preserved in
// ExtraPayload, so that DecodeModule(EncodeModule(m)) round trips exactly.
func DecodeModule(b []byte) (*wasm.Module, error) {
	r := newReader(b)

	var magicBuf [4]byte
	for i := range magicBuf {
		by, err := r.readByte()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read magic number")
		}
		magicBuf[i] = by
	}
	if magicBuf != magicNumber {
		return nil, errors.New("invalid magic number")
	}

	var versionBuf [4]byte
	for i := range versionBuf {
		by, err := r.readByte()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read version")
		}
		versionBuf[i] = by
	}
	if versionBuf != mvpVersion && versionBuf != preMvpVersion {
		return nil, errors.New("invalid version header")
	}

	m := &wasm.Module{
		Magic:   leBytesToU32(magicBuf),
		Version: leBytesToU32(versionBuf),
	}

	seenSections := map[wasm.SectionID]bool{}
	seenCustomNames := map[string]bool{}

	for r.remaining() > 0 {
		idByte, err := r.readByte()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read section ID")
		}
		id := wasm.SectionID(idByte)

		payloadLen, err := r.readU32()
		if err != nil {
			return nil, errors.Wrapf(err, "section ID %d: failed to read payload length", id)
		}

		payload, err := r.readBytes(payloadLen)
		if err != nil {
			return nil, errors.Wrapf(err, "section ID %d: failed to read payload", id)
		}

		sec, err := decodeSection(id, payload)
		if err != nil {
			return nil, errors.Wrapf(err, "section ID %d", id)
		}

		if id == wasm.SectionIDCustom {
			if seenCustomNames[sec.Name] {
				return nil, errors.Errorf("section ID 0: redundant custom section %s", sec.Name)
			}
			seenCustomNames[sec.Name] = true
		} else {
			if seenSections[id] {
				return nil, errors.Errorf("section ID %d: redundant section", id)
			}
			seenSections[id] = true
		}

		m.Sections = append(m.Sections, sec)
	}

	return m, nil
}

func leBytesToU32(b [4]byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// decodeSection decodes one section's payload, given its already-consumed
// ID byte and the raw bytes of its payload_length-delimited body.
func decodeSection(id wasm.SectionID, payload []byte) (*wasm.Section, error) {
	r := newReader(payload)
	sec := &wasm.Section{ID: id}

	switch id {
	case wasm.SectionIDCustom:
		name, err := r.readName()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read custom section name")
		}
		sec.Name = name
		raw, err := r.readBytes(uint32(r.remaining()))
		if err != nil {
			return nil, err
		}
		sec.Raw = raw
		if name == "name" {
			if ns, err := decodeNameSection(raw); err == nil {
				sec.Names = ns
			}
		}
		return sec, nil

	case wasm.SectionIDType:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Types = make([]*wasm.FunctionType, count)
		for i := range sec.Types {
			ft, err := decodeFunctionType(r)
			if err != nil {
				return nil, errors.Wrapf(err, "type[%d]", i)
			}
			sec.Types[i] = ft
		}

	case wasm.SectionIDImport:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Imports = make([]*wasm.Import, count)
		for i := range sec.Imports {
			imp, err := decodeImport(r)
			if err != nil {
				return nil, errors.Wrapf(err, "import[%d]", i)
			}
			sec.Imports[i] = imp
		}

	case wasm.SectionIDFunction:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.FunctionTypeIndices = make([]uint32, count)
		for i := range sec.FunctionTypeIndices {
			if sec.FunctionTypeIndices[i], err = r.readU32(); err != nil {
				return nil, errors.Wrapf(err, "function[%d]", i)
			}
		}

	case wasm.SectionIDTable:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Tables = make([]*wasm.Table, count)
		for i := range sec.Tables {
			elemType, err := r.readByte()
			if err != nil {
				return nil, err
			}
			if wasm.LanguageType(elemType) != wasm.LanguageTypeAnyFunc {
				return nil, errors.Errorf("table[%d]: unsupported element type 0x%02x", i, elemType)
			}
			limits, err := r.readLimits()
			if err != nil {
				return nil, errors.Wrapf(err, "table[%d]", i)
			}
			sec.Tables[i] = &wasm.Table{Limits: limits}
		}

	case wasm.SectionIDMemory:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Memories = make([]*wasm.Memory, count)
		for i := range sec.Memories {
			limits, err := r.readLimits()
			if err != nil {
				return nil, errors.Wrapf(err, "memory[%d]", i)
			}
			sec.Memories[i] = &wasm.Memory{Limits: limits}
		}

	case wasm.SectionIDGlobal:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Globals = make([]*wasm.Global, count)
		for i := range sec.Globals {
			g, err := decodeGlobal(r)
			if err != nil {
				return nil, errors.Wrapf(err, "global[%d]", i)
			}
			sec.Globals[i] = g
		}

	case wasm.SectionIDExport:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Exports = make([]*wasm.Export, count)
		for i := range sec.Exports {
			exp, err := decodeExport(r)
			if err != nil {
				return nil, errors.Wrapf(err, "export[%d]", i)
			}
			sec.Exports[i] = exp
		}

	case wasm.SectionIDStart:
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Start = &idx

	case wasm.SectionIDElement:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Elements = make([]*wasm.ElementSegment, count)
		for i := range sec.Elements {
			el, err := decodeElementSegment(r)
			if err != nil {
				return nil, errors.Wrapf(err, "elem[%d]", i)
			}
			sec.Elements[i] = el
		}

	case wasm.SectionIDCode:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Codes = make([]*wasm.Code, count)
		for i := range sec.Codes {
			c, err := decodeCode(r)
			if err != nil {
				return nil, errors.Wrapf(err, "code[%d]", i)
			}
			sec.Codes[i] = c
		}

	case wasm.SectionIDData:
		count, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sec.Data = make([]*wasm.DataSegment, count)
		for i := range sec.Data {
			d, err := decodeDataSegment(r)
			if err != nil {
				return nil, errors.Wrapf(err, "data[%d]", i)
			}
			sec.Data[i] = d
		}

	default:
		sec.Raw = append([]byte(nil), payload...)
		return sec, nil
	}

	if rem := r.remaining(); rem > 0 {
		extra, err := r.readBytes(uint32(rem))
		if err != nil {
			return nil, errors.Wrap(err, "failed to capture extra payload")
		}
		sec.ExtraPayload = extra
	}
	return sec, nil
}

func decodeFunctionType(r *reader) (*wasm.FunctionType, error) {
	form, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if wasm.LanguageType(form) != wasm.LanguageTypeFunc {
		return nil, errors.Errorf("invalid function type form 0x%02x", form)
	}
	paramCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	var params []wasm.ValueType
	if paramCount > 0 {
		params = make([]wasm.ValueType, paramCount)
	}
	for i := range params {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		params[i] = wasm.ValueType(b)
	}
	resultCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	var results []wasm.ValueType
	if resultCount > 0 {
		results = make([]wasm.ValueType, resultCount)
	}
	for i := range results {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		results[i] = wasm.ValueType(b)
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func decodeImport(r *reader) (*wasm.Import, error) {
	mod, err := r.readName()
	if err != nil {
		return nil, err
	}
	name, err := r.readName()
	if err != nil {
		return nil, err
	}
	kindByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	imp := &wasm.Import{Module: mod, Name: name, Kind: wasm.ExternalKind(kindByte)}
	switch imp.Kind {
	case wasm.ExternalKindFunction:
		if imp.DescFunc, err = r.readU32(); err != nil {
			return nil, err
		}
	case wasm.ExternalKindTable:
		elemType, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if wasm.LanguageType(elemType) != wasm.LanguageTypeAnyFunc {
			return nil, errors.Errorf("unsupported table element type 0x%02x", elemType)
		}
		limits, err := r.readLimits()
		if err != nil {
			return nil, err
		}
		imp.DescTable = &wasm.Table{Limits: limits}
	case wasm.ExternalKindMemory:
		limits, err := r.readLimits()
		if err != nil {
			return nil, err
		}
		imp.DescMem = &wasm.Memory{Limits: limits}
	case wasm.ExternalKindGlobal:
		g, err := decodeGlobalTypeOnly(r)
		if err != nil {
			return nil, err
		}
		imp.DescGlobal = g
	default:
		return nil, errors.Errorf("invalid import kind 0x%02x", kindByte)
	}
	return imp, nil
}

func decodeGlobalTypeOnly(r *reader) (*wasm.Global, error) {
	vt, err := r.readByte()
	if err != nil {
		return nil, err
	}
	mutByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return &wasm.Global{Type: wasm.ValueType(vt), Mutable: mutByte == 1}, nil
}

func decodeGlobal(r *reader) (*wasm.Global, error) {
	g, err := decodeGlobalTypeOnly(r)
	if err != nil {
		return nil, err
	}
	init, err := decodeConstExpr(r)
	if err != nil {
		return nil, err
	}
	g.Init = init
	return g, nil
}

func decodeExport(r *reader) (*wasm.Export, error) {
	name, err := r.readName()
	if err != nil {
		return nil, err
	}
	kindByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	idx, err := r.readU32()
	if err != nil {
		return nil, err
	}
	return &wasm.Export{Name: name, Kind: wasm.ExternalKind(kindByte), Index: idx}, nil
}

func decodeElementSegment(r *reader) (*wasm.ElementSegment, error) {
	tableIdx, err := r.readU32()
	if err != nil {
		return nil, err
	}
	offset, err := decodeConstExpr(r)
	if err != nil {
		return nil, err
	}
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	init := make([]uint32, count)
	for i := range init {
		if init[i], err = r.readU32(); err != nil {
			return nil, err
		}
	}
	return &wasm.ElementSegment{TableIndex: tableIdx, Offset: offset, Init: init}, nil
}

func decodeDataSegment(r *reader) (*wasm.DataSegment, error) {
	memIdx, err := r.readU32()
	if err != nil {
		return nil, err
	}
	offset, err := decodeConstExpr(r)
	if err != nil {
		return nil, err
	}
	size, err := r.readU32()
	if err != nil {
		return nil, err
	}
	init, err := r.readBytes(size)
	if err != nil {
		return nil, err
	}
	return &wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: init}, nil
}

func decodeCode(r *reader) (*wasm.Code, error) {
	bodySize, err := r.readU32()
	if err != nil {
		return nil, err
	}
	bodyBytes, err := r.readBytes(bodySize)
	if err != nil {
		return nil, err
	}
	br := newReader(bodyBytes)

	localGroupCount, err := br.readU32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read local group count")
	}
	var locals []wasm.LocalEntry
	if localGroupCount > 0 {
		locals = make([]wasm.LocalEntry, localGroupCount)
	}
	for i := range locals {
		count, err := br.readU32()
		if err != nil {
			return nil, err
		}
		vt, err := br.readByte()
		if err != nil {
			return nil, err
		}
		locals[i] = wasm.LocalEntry{Count: count, Type: wasm.ValueType(vt)}
	}

	body, _, err := decodeInstructions(br)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode function body")
	}

	c := &wasm.Code{LocalTypes: locals, Body: body}
	if rem := br.remaining(); rem > 0 {
		extra, err := br.readBytes(uint32(rem))
		if err != nil {
			return nil, err
		}
		c.BodyExtraPayload = extra
	}
	return c, nil
}
