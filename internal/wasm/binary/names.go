package binary

import (
	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/wasm"
)

const (
	subsectionIDModuleName    = 0
	subsectionIDFunctionNames = 1
	subsectionIDLocalNames    = 2
)

// decodeNameSection parses the "name" custom section's payload: a sequence
// of (subsection ID, size, content) entries. An unrecognized subsection ID
// is skipped over using its declared size, so a future subsection type
// doesn't break decoding the ones this package does recognize.
func decodeNameSection(raw []byte) (*wasm.NameSection, error) {
	r := newReader(raw)
	ns := &wasm.NameSection{}

	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read subsection ID")
		}
		size, err := r.readU32()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read subsection size")
		}
		content, err := r.readBytes(size)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read subsection content")
		}

		switch id {
		case subsectionIDModuleName:
			name, err := newReader(content).readName()
			if err != nil {
				return nil, errors.Wrap(err, "failed to read module name")
			}
			ns.ModuleName = name
		case subsectionIDFunctionNames:
			m, err := decodeNameMap(content)
			if err != nil {
				return nil, errors.Wrap(err, "failed to read function names")
			}
			ns.FunctionNames = m
		case subsectionIDLocalNames:
			m, err := decodeIndirectNameMap(content)
			if err != nil {
				return nil, errors.Wrap(err, "failed to read local names")
			}
			ns.LocalNames = m
		}
	}
	return ns, nil
}

func decodeNameMap(content []byte) (wasm.NameMap, error) {
	r := newReader(content)
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make(wasm.NameMap, count)
	for i := range out {
		idx, err := r.readU32()
		if err != nil {
			return nil, errors.Wrapf(err, "entry[%d]: index", i)
		}
		name, err := r.readName()
		if err != nil {
			return nil, errors.Wrapf(err, "entry[%d]: name", i)
		}
		out[i] = wasm.NameAssoc{Index: idx, Name: name}
	}
	return out, nil
}

func decodeIndirectNameMap(content []byte) (wasm.IndirectNameMap, error) {
	r := newReader(content)
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make(wasm.IndirectNameMap, count)
	for i := range out {
		idx, err := r.readU32()
		if err != nil {
			return nil, errors.Wrapf(err, "entry[%d]: index", i)
		}
		innerCount, err := r.readU32()
		if err != nil {
			return nil, errors.Wrapf(err, "entry[%d]: inner count", i)
		}
		inner := make(wasm.NameMap, innerCount)
		for j := range inner {
			innerIdx, err := r.readU32()
			if err != nil {
				return nil, errors.Wrapf(err, "entry[%d][%d]: index", i, j)
			}
			name, err := r.readName()
			if err != nil {
				return nil, errors.Wrapf(err, "entry[%d][%d]: name", i, j)
			}
			inner[j] = wasm.NameAssoc{Index: innerIdx, Name: name}
		}
		out[i] = wasm.IndirectNameAssoc{Index: idx, NameMap: inner}
	}
	return out, nil
}
