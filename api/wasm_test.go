package api

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternTypeName(t *testing.T) {
	tests := []struct {
		name     string
		input    ExternType
		expected string
	}{
		{"func", ExternTypeFunc, "func"},
		{"table", ExternTypeTable, "table"},
		{"mem", ExternTypeMemory, "memory"},
		{"global", ExternTypeGlobal, "global"},
		{"unknown", 100, "0x64"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ExternTypeName(tc.input))
		})
	}
}

func TestValueTypeName(t *testing.T) {
	tests := []struct {
		name     string
		input    ValueType
		expected string
	}{
		{"i32", ValueTypeI32, "i32"},
		{"i64", ValueTypeI64, "i64"},
		{"f32", ValueTypeF32, "f32"},
		{"f64", ValueTypeF64, "f64"},
		{"unknown", 100, "unknown"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ValueTypeName(tc.input))
		})
	}
}

func TestEncodeDecodeF32(t *testing.T) {
	for _, v := range []float32{
		0, 100, -100, 1, -1,
		100.01234124, -100.01234124,
		math.MaxFloat32,
		float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN()),
	} {
		t.Run(fmt.Sprintf("%f", v), func(t *testing.T) {
			encoded := EncodeF32(v)
			decoded := DecodeF32(encoded)
			require.Zero(t, encoded>>32) // high bits unset
			if math.IsNaN(float64(decoded)) {
				require.True(t, math.IsNaN(float64(decoded)))
			} else {
				require.Equal(t, v, decoded)
			}
		})
	}
}

func TestEncodeDecodeF64(t *testing.T) {
	for _, v := range []float64{
		0, 100, -100, 1, -1,
		math.MaxFloat64, math.SmallestNonzeroFloat64,
		math.Inf(1), math.Inf(-1), math.NaN(),
	} {
		t.Run(fmt.Sprintf("%f", v), func(t *testing.T) {
			encoded := EncodeF64(v)
			decoded := DecodeF64(encoded)
			if math.IsNaN(decoded) {
				require.True(t, math.IsNaN(decoded))
			} else {
				require.Equal(t, v, decoded)
			}
		})
	}
}

func TestEncodeDecodeI32(t *testing.T) {
	for _, v := range []int32{0, 100, -100, 1, -1, math.MaxInt32, math.MinInt32} {
		t.Run(fmt.Sprintf("%d", v), func(t *testing.T) {
			encoded := EncodeI32(v)
			require.Zero(t, encoded>>32)
			require.Equal(t, v, DecodeI32(encoded))
		})
	}
}

func TestEncodeDecodeI64(t *testing.T) {
	for _, v := range []int64{0, 100, -100, 1, -1, math.MaxInt64, math.MinInt64} {
		t.Run(fmt.Sprintf("%d", v), func(t *testing.T) {
			require.Equal(t, v, DecodeI64(EncodeI64(v)))
		})
	}
}

func TestEncodeDecodeU32(t *testing.T) {
	for _, v := range []uint32{0, 1, math.MaxUint32} {
		require.Equal(t, v, DecodeU32(EncodeU32(v)))
	}
}
