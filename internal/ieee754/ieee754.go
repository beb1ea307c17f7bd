// Package ieee754 provides bit-level floating point helpers shared by the
// text lexer (NaN-payload literals) and the interpreter (NaN-propagating
// arithmetic, sign manipulation, integer/float bit reinterpretation).
package ieee754

import (
	"math"

	"github.com/chewxy/math32"
)

const (
	f64QuietBit = uint64(1) << 51
	f64ExpMask  = uint64(0x7ff) << 52
	f64SignBit  = uint64(1) << 63
	f64MantMask = (uint64(1) << 52) - 1

	f32QuietBit = uint32(1) << 22
	f32ExpMask  = uint32(0xff) << 23
	f32SignBit  = uint32(1) << 31
	f32MantMask = (uint32(1) << 23) - 1
)

// NaN64WithPayload builds a float64 quiet NaN from scratch: sign bit,
// all-ones exponent, the canonical quiet bit, and the given payload folded
// into the remaining mantissa bits. It never XORs against a platform-supplied
// NaN bit pattern, per the canonicalization note in the design notes.
func NaN64WithPayload(negative bool, payload uint64) float64 {
	bits := f64ExpMask | f64QuietBit | (payload & (f64MantMask &^ f64QuietBit))
	if negative {
		bits |= f64SignBit
	}
	return math.Float64frombits(bits)
}

// NaN64Payload extracts the mantissa payload bits (including the quiet bit)
// of a float64 NaN.
func NaN64Payload(f float64) uint64 {
	return math.Float64bits(f) & f64MantMask
}

// NaN32WithPayload builds a float32 quiet NaN the same way as
// NaN64WithPayload, for the 32-bit format (quiet bit at mantissa bit 22).
func NaN32WithPayload(negative bool, payload uint32) float32 {
	bits := f32ExpMask | f32QuietBit | (payload & (f32MantMask &^ f32QuietBit))
	if negative {
		bits |= f32SignBit
	}
	return math32.Float32frombits(bits)
}

// NaN32Payload extracts the mantissa payload bits (including the quiet bit)
// of a float32 NaN.
func NaN32Payload(f float32) uint32 {
	return math32.Float32bits(f) & f32MantMask
}

// Signbit64 reports whether f's sign bit is set, including for NaN and zero.
func Signbit64(f float64) bool {
	return math.Signbit(f)
}

// Signbit32 reports whether f's sign bit is set, including for NaN and zero.
func Signbit32(f float32) bool {
	return math32.Signbit(f)
}

// Copysign64 returns a value with the magnitude of x and the sign of y.
func Copysign64(x, y float64) float64 {
	return math.Copysign(x, y)
}

// Copysign32 returns a value with the magnitude of x and the sign of y.
func Copysign32(x, y float32) float32 {
	return math32.Copysign(x, y)
}

// WasmCompatMin64 is math.Min, except NaN propagates even against Inf, per
// the WebAssembly spec's NaN-propagation rule ("if any input is NaN, the
// result is a NaN").
func WasmCompatMin64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax64 is the WebAssembly-compatible counterpart to
// WasmCompatMin64.
func WasmCompatMax64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatMin32 is the float32 counterpart to WasmCompatMin64.
func WasmCompatMin32(x, y float32) float32 {
	switch {
	case math32.IsNaN(x) || math32.IsNaN(y):
		return math32.NaN()
	case math32.IsInf(x, -1) || math32.IsInf(y, -1):
		return math32.Inf(-1)
	case x == 0 && x == y:
		if math32.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax32 is the float32 counterpart to WasmCompatMax64.
func WasmCompatMax32(x, y float32) float32 {
	switch {
	case math32.IsNaN(x) || math32.IsNaN(y):
		return math32.NaN()
	case math32.IsInf(x, 1) || math32.IsInf(y, 1):
		return math32.Inf(1)
	case x == 0 && x == y:
		if math32.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// Float32bits reinterprets f's bits as an i32 view, used by i32.reinterpret_f32.
func Float32bits(f float32) uint32 { return math32.Float32bits(f) }

// Float32frombits reinterprets bits as an f32 view, used by f32.reinterpret_i32.
func Float32frombits(b uint32) float32 { return math32.Float32frombits(b) }

// Float64bits reinterprets f's bits as an i64 view, used by i64.reinterpret_f64.
func Float64bits(f float64) uint64 { return math.Float64bits(f) }

// Float64frombits reinterprets bits as an f64 view, used by f64.reinterpret_i64.
func Float64frombits(b uint64) float64 { return math.Float64frombits(b) }
