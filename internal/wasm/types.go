package wasm

import "strings"

// FunctionType is a function signature: an ordered list of parameter types
// and an ordered list of result types. In the MVP, Results has at most
// one element.
//
// See https://webassembly.github.io/spec/core/binary/types.html#function-types
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether f and o have element-wise equal Params and Results.
func (f *FunctionType) Equal(o *FunctionType) bool {
	if f == o {
		return true
	}
	if o == nil {
		return false
	}
	return sameValueTypes(f.Params, o.Params) && sameValueTypes(f.Results, o.Results)
}

func sameValueTypes(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// key returns a string that uniquely identifies f's signature, suitable for
// use as a map key when deduplicating function types.
func (f *FunctionType) key() string {
	var b strings.Builder
	for _, p := range f.Params {
		b.WriteByte(byte(p))
	}
	b.WriteByte(0xff) // separator, not a valid ValueType byte
	for _, r := range f.Results {
		b.WriteByte(byte(r))
	}
	return b.String()
}

// String renders f in the text format's typeuse shorthand, e.g.
// "(param i32 i32) (result i32)".
func (f *FunctionType) String() string {
	var b strings.Builder
	if len(f.Params) > 0 {
		b.WriteString("(param")
		for _, p := range f.Params {
			b.WriteByte(' ')
			b.WriteString(ValueTypeName(p))
		}
		b.WriteByte(')')
	}
	if len(f.Results) > 0 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(result")
		for _, r := range f.Results {
			b.WriteByte(' ')
			b.WriteString(ValueTypeName(r))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// Global describes the static shape of a global variable declaration: its
// value type, mutability, and (for module-defined, non-imported globals)
// its constant initializer expression.
type Global struct {
	Type    ValueType
	Mutable bool
	Init    ConstantExpression
}

// Table is the MVP's sole table shape: a resizable vector of anyfunc
// elements.
type Table struct {
	Limits ResizableLimits
}

// Memory is a linear memory declaration: its resizable limits, counted in
// 64KiB pages.
type Memory struct {
	Limits ResizableLimits
}

// Import is a single entry of the import section.
type Import struct {
	Module, Name string
	Kind         ExternalKind

	// Exactly one of the following is meaningful, selected by Kind.
	DescFunc   uint32 // index into the type section
	DescTable  *Table
	DescMem    *Memory
	DescGlobal *Global
}

// Export is a single entry of the export section.
type Export struct {
	Name  string
	Kind  ExternalKind
	Index uint32
}

// ElementSegment initializes a contiguous run of a table's elements with
// function indices, computed from a constant offset expression.
type ElementSegment struct {
	TableIndex uint32
	Offset     ConstantExpression
	Init       []uint32 // function indices
}

// DataSegment initializes a contiguous run of a memory's bytes, computed
// from a constant offset expression.
type DataSegment struct {
	MemoryIndex uint32
	Offset      ConstantExpression
	Init        []byte
}

// LocalEntry is one run-length-encoded group of same-typed locals in a
// function body, as stored in the binary format's compressed encoding.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// Code is a function body: its compressed local declarations and its
// instruction stream. Body excludes the trailing `end`: the decoder
// consumes it and the encoder writes it back.
type Code struct {
	LocalTypes   []LocalEntry
	Body         []Instruction
	// BodyExtraPayload captures any trailing bytes the decoder did not
	// recognize as instructions, preserved verbatim for round-trip fidelity.
	BodyExtraPayload []byte
}

// NumLocals returns the expanded local count (sum of each entry's Count).
func (c *Code) NumLocals() uint32 {
	var n uint32
	for _, e := range c.LocalTypes {
		n += e.Count
	}
	return n
}
