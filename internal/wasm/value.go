package wasm

// ValueType is one of the four numeric types usable as a function
// parameter, result, or global: i32, i64, f32 or f64.
//
// See https://webassembly.github.io/spec/core/binary/types.html#value-types
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns the text-format mnemonic for t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// LanguageType extends ValueType with the additional encodings that appear
// in block types and table/function declarations: the empty block type, the
// anyfunc element type, and the func type constructor tag.
//
// See https://webassembly.github.io/spec/core/binary/types.html#binary-blocktype
type LanguageType byte

const (
	LanguageTypeI32     LanguageType = LanguageType(ValueTypeI32)
	LanguageTypeI64     LanguageType = LanguageType(ValueTypeI64)
	LanguageTypeF32     LanguageType = LanguageType(ValueTypeF32)
	LanguageTypeF64     LanguageType = LanguageType(ValueTypeF64)
	LanguageTypeAnyFunc LanguageType = 0x70
	LanguageTypeFunc    LanguageType = 0x60
	LanguageTypeEmpty   LanguageType = 0x40
)

// ExternalKind classifies an entry of the import or export section.
//
// See https://webassembly.github.io/spec/core/binary/modules.html#binary-importdesc
type ExternalKind byte

const (
	ExternalKindFunction ExternalKind = 0x00
	ExternalKindTable    ExternalKind = 0x01
	ExternalKindMemory   ExternalKind = 0x02
	ExternalKindGlobal   ExternalKind = 0x03
)

// ExternalKindName returns the text-format field name for k.
func ExternalKindName(k ExternalKind) string {
	switch k {
	case ExternalKindFunction:
		return "func"
	case ExternalKindTable:
		return "table"
	case ExternalKindMemory:
		return "memory"
	case ExternalKindGlobal:
		return "global"
	}
	return "unknown"
}

// ResizableLimits describes the initial and optional maximum size of a
// table or linear memory, counted in table elements or 64KiB pages
// respectively.
//
// See https://webassembly.github.io/spec/core/binary/types.html#limits
type ResizableLimits struct {
	Initial uint32
	Maximum *uint32
}

// HasMaximum reports whether l declares a maximum.
func (l *ResizableLimits) HasMaximum() bool {
	return l.Maximum != nil
}

// MemoryPageSize is the number of bytes in one linear memory page.
const MemoryPageSize = 65536

// MemoryMaxPages is the hard ceiling on the number of pages (2^16), matching
// the 32-bit addressable range of MVP linear memory.
const MemoryMaxPages = 65536
