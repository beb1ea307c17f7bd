package wat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUint32(t *testing.T) {
	for _, tt := range []struct {
		name, input string
		expected    uint32
		expectedErr bool
	}{
		{name: "zero", input: "0", expected: 0},
		{name: "largest uint16", input: "65535", expected: 0xffff},
		{name: "largest uint32", input: "4294967295", expected: 0xffffffff},
		{name: "largest uint32 with underscores", input: "4_2_9_4_9_6_7_2_9_5", expected: 0xffffffff},
		{name: "overflow by one", input: "4294967296", expectedErr: true},
		{name: "overflow by one with underscores", input: "4_2_9_4_9_6_7_2_9_6", expectedErr: true},
		{name: "overflow by pow", input: "42949672950", expectedErr: true},
	} {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := decodeUint32([]byte(tc.input))
			if tc.expectedErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestDecodeUint64(t *testing.T) {
	for _, tt := range []struct {
		name, input string
		expected    uint64
		expectedErr bool
	}{
		{name: "zero", input: "0", expected: 0},
		{name: "largest uint32", input: "4294967295", expected: 0xffffffff},
		{name: "largest uint64", input: "18446744073709551615", expected: 0xffffffffffffffff},
		{name: "largest uint64 with underscores", input: "1_8_4_4_6_7_4_4_0_7_3_7_0_9_5_5_1_6_1_5", expected: 0xffffffffffffffff},
		{name: "overflow by one", input: "18446744073709551616", expectedErr: true},
	} {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := decodeUint64([]byte(tc.input))
			if tc.expectedErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestDecodeInt32(t *testing.T) {
	for _, tt := range []struct {
		name, input string
		expected    int32
	}{
		{name: "zero", input: "0", expected: 0},
		{name: "positive", input: "127", expected: 127},
		{name: "negative", input: "-128", expected: -128},
		{name: "hex", input: "0x7f", expected: 127},
		{name: "hex negative", input: "-0x80", expected: -128},
	} {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual, err := decodeInt32([]byte(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestDecodeFloat64_NaNPayload(t *testing.T) {
	f, err := decodeFloat64([]byte("nan:0x4000000000000"))
	require.NoError(t, err)
	require.True(t, f != f) // NaN is never equal to itself
}

func TestDecodeFloat64_Inf(t *testing.T) {
	f, err := decodeFloat64([]byte("inf"))
	require.NoError(t, err)
	assert.True(t, f > 1e300)

	f, err = decodeFloat64([]byte("-inf"))
	require.NoError(t, err)
	assert.True(t, f < -1e300)
}

func TestDecodeFloat64_HexFloatWithoutExponent(t *testing.T) {
	f, err := decodeFloat64([]byte("0x1.8"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	f, err = decodeFloat64([]byte("0x1.8p1"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
}

func TestClassifyNumber(t *testing.T) {
	assert.Equal(t, tokenUN, classifyNumber("42"))
	assert.Equal(t, tokenSN, classifyNumber("-42"))
	assert.Equal(t, tokenFN, classifyNumber("1.5"))
	assert.Equal(t, tokenFN, classifyNumber("nan"))
	assert.Equal(t, tokenFN, classifyNumber("inf"))
	assert.Equal(t, tokenFN, classifyNumber("1e10"))
}
