// Package api includes constants and interfaces shared between embedders
// (callers of the vela package) and host functions bound in via
// HostModuleBuilder.
package api

import (
	"context"
	"fmt"
	"math"
)

// ValueType is one of the four numeric types a WebAssembly 1.0 function
// parameter, result, or global can have.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns t's text-format mnemonic, or "unknown".
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

// ExternType classifies an entry of a module's import or export table.
type ExternType byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns t's text-format field name, or a hex fallback.
func ExternTypeName(t ExternType) string {
	switch t {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", byte(t))
}

// GoFunction is the low-level host function form: stack holds the
// parameters on entry (one uint64 slot per ValueType, encoded per the
// Encode*/Decode* helpers below) and must hold the results on return.
//
// See HostFunctionBuilder.WithGoFunction.
type GoFunction func(ctx context.Context, stack []uint64)

// GoModuleFunction is like GoFunction, but also receives the calling
// Module, most commonly to access its exported memory.
//
// See HostFunctionBuilder.WithGoModuleFunction.
type GoModuleFunction func(ctx context.Context, mod Module, stack []uint64)

// Closer closes a resource.
type Closer interface {
	// Close releases the resource. When ctx is nil, it defaults to
	// context.Background.
	Close(ctx context.Context) error
}

// Module is an instantiated WebAssembly module, or host module.
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations.
//     All implementations live in the vela package.
type Module interface {
	fmt.Stringer
	Closer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns the module's memory, whether or not it is exported,
	// or nil if the module has none.
	Memory() Memory

	// ExportedFunction returns a function exported under name, or nil.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported under name, or nil.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported under name, or nil.
	ExportedGlobal(name string) Global
}

// Function is a WebAssembly function exported from an instantiated module.
type Function interface {
	// Call invokes the function, passing params encoded per its parameter
	// ValueTypes and returning results encoded per its result ValueTypes.
	// When ctx is nil, it defaults to context.Background.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Global is a WebAssembly global exported from an instantiated module.
type Global interface {
	fmt.Stringer

	// Type is the global's numeric type.
	Type() ValueType

	// Get returns the global's current value, encoded per Type.
	Get() uint64
}

// MutableGlobal is a Global declared mutable in its defining module.
type MutableGlobal interface {
	Global

	// Set updates the global's value, encoded per Type.
	Set(v uint64)
}

// Memory grants restricted, little-endian access to a module's linear
// memory.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#storage%E2%91%A0
type Memory interface {
	// Size returns the current size in bytes.
	Size() uint32

	// Grow increases memory by deltaPages (65536 bytes each), returning the
	// previous size in pages, or ok=false if doing so would exceed the
	// module's declared or configured maximum.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// ReadByte reads a single byte at offset, or ok=false if out of range.
	ReadByte(offset uint32) (byte, bool)

	// ReadUint32Le reads a little-endian uint32 at offset.
	ReadUint32Le(offset uint32) (uint32, bool)

	// ReadUint64Le reads a little-endian uint64 at offset.
	ReadUint64Le(offset uint32) (uint64, bool)

	// ReadFloat32Le reads a little-endian IEEE-754 float32 at offset.
	ReadFloat32Le(offset uint32) (float32, bool)

	// ReadFloat64Le reads a little-endian IEEE-754 float64 at offset.
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read returns a byteCount-length view of the buffer starting at
	// offset. Writes through the returned slice are visible to Wasm code,
	// and vice versa, until the next memory.grow invalidates it.
	Read(offset, byteCount uint32) ([]byte, bool)

	// WriteByte writes a single byte at offset.
	WriteByte(offset uint32, v byte) bool

	// WriteUint32Le writes v little-endian at offset.
	WriteUint32Le(offset, v uint32) bool

	// WriteUint64Le writes v little-endian at offset.
	WriteUint64Le(offset uint32, v uint64) bool

	// WriteFloat32Le writes v's IEEE-754 bits little-endian at offset.
	WriteFloat32Le(offset uint32, v float32) bool

	// WriteFloat64Le writes v's IEEE-754 bits little-endian at offset.
	WriteFloat64Le(offset uint32, v float64) bool

	// Write copies v into the buffer starting at offset.
	Write(offset uint32, v []byte) bool
}

// EncodeI32 encodes input as a ValueTypeI32 stack slot.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// DecodeI32 decodes a ValueTypeI32 stack slot.
func DecodeI32(input uint64) int32 { return int32(uint32(input)) }

// EncodeU32 encodes input as a ValueTypeI32 stack slot.
func EncodeU32(input uint32) uint64 { return uint64(input) }

// DecodeU32 decodes a ValueTypeI32 stack slot as unsigned.
func DecodeU32(input uint64) uint32 { return uint32(input) }

// EncodeI64 encodes input as a ValueTypeI64 stack slot.
func EncodeI64(input int64) uint64 { return uint64(input) }

// DecodeI64 decodes a ValueTypeI64 stack slot.
func DecodeI64(input uint64) int64 { return int64(input) }

// EncodeF32 encodes input as a ValueTypeF32 stack slot.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes a ValueTypeF32 stack slot.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes input as a ValueTypeF64 stack slot.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes a ValueTypeF64 stack slot.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }
