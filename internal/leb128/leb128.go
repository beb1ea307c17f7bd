// Package leb128 implements the variable-length integer encoding used
// throughout the WebAssembly binary format.
package leb128

import (
	"io"

	"github.com/pkg/errors"
)

const (
	maxVarintLen32 = 5
	maxVarintLen33 = 5
	maxVarintLen64 = 10
)

// DecodeUint32 decodes an unsigned 32-bit LEB128 integer from r, returning
// the value and the number of bytes consumed.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	ret, bytesRead, err := decodeUint(r, 32)
	return uint32(ret), bytesRead, err
}

// DecodeUint64 decodes an unsigned 64-bit LEB128 integer from r, returning
// the value and the number of bytes consumed.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUint(r, 64)
}

func decodeUint(r io.ByteReader, bitSize int) (uint64, uint64, error) {
	var result uint64
	var shift int
	var read uint64
	maxLen := maxVarintLen32
	if bitSize == 64 {
		maxLen = maxVarintLen64
	}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, errors.Wrap(err, "readByte failed")
		}
		read++
		if read > uint64(maxLen) {
			return 0, 0, errors.New("invalid: too many bytes for uint LEB128")
		}

		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			remainingBits := bitSize - shift
			if remainingBits < 7 && (b>>uint(remainingBits)) != 0 {
				return 0, 0, errors.New("invalid: overflows uint LEB128")
			}
			break
		}
		shift += 7
	}
	return result, read, nil
}

// DecodeInt32 decodes a signed 32-bit LEB128 integer from r, returning the
// value and the number of bytes consumed.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	ret, read, err := decodeInt(r, 32)
	return int32(ret), read, err
}

// DecodeInt33AsInt64 decodes a signed 33-bit LEB128 integer (used for block
// types) as an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeInt(r, 33)
}

// DecodeInt64 decodes a signed 64-bit LEB128 integer from r, returning the
// value and the number of bytes consumed.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeInt(r, 64)
}

func decodeInt(r io.ByteReader, bitSize int) (int64, uint64, error) {
	var result int64
	var shift int
	var read uint64
	maxLen := maxVarintLen32
	switch bitSize {
	case 33:
		maxLen = maxVarintLen33
	case 64:
		maxLen = maxVarintLen64
	}

	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, errors.Wrap(err, "readByte failed")
		}
		read++
		if read > uint64(maxLen) {
			return 0, 0, errors.New("invalid: too many bytes for signed LEB128")
		}

		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}

	// Sign extend based on the sign bit (bit 6) of the final byte.
	if shift < bitSize && (b&0x40) != 0 {
		result |= -1 << shift
	}

	// Reject encodings that smuggle extra significant bits past bitSize.
	if bitSize < 64 {
		sext := result >> (bitSize - 1)
		if sext != 0 && sext != -1 {
			return 0, 0, errors.New("invalid: overflows signed LEB128")
		}
	}

	return result, read, nil
}

// EncodeUint32 encodes v as unsigned LEB128 using the minimum number of bytes.
func EncodeUint32(v uint32) []byte {
	return encodeUint(uint64(v))
}

// EncodeUint64 encodes v as unsigned LEB128 using the minimum number of bytes.
func EncodeUint64(v uint64) []byte {
	return encodeUint(v)
}

func encodeUint(v uint64) []byte {
	out := make([]byte, 0, maxVarintLen32)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// EncodeInt32 encodes v as signed LEB128 using the minimum number of bytes.
func EncodeInt32(v int32) []byte {
	return encodeInt(int64(v))
}

// EncodeInt33 encodes v (a value representable in 33 signed bits) as LEB128.
func EncodeInt33(v int64) []byte {
	return encodeInt(v)
}

// EncodeInt64 encodes v as signed LEB128 using the minimum number of bytes.
func EncodeInt64(v int64) []byte {
	return encodeInt(v)
}

func encodeInt(v int64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}
