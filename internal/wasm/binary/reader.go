// Package binary implements the WebAssembly binary format's encoder and
// decoder: section framing, the known section bodies, and the instruction
// opcode stream, including byte-for-byte round trip of anything this
// decoder does not need to interpret.
package binary

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/ieee754"
	"github.com/vela-wasm/vela/internal/leb128"
	"github.com/vela-wasm/vela/internal/wasm"
)

var (
	magicNumber   = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"
	mvpVersion    = [4]byte{0x01, 0x00, 0x00, 0x00}
	preMvpVersion = [4]byte{0x0d, 0x00, 0x00, 0x00}
)

// reader tracks the current byte offset within a module in pos. Error
// messages do not include that offset.
type reader struct {
	r   *bytes.Reader
	pos uint64
}

func newReader(b []byte) *reader {
	return &reader{r: bytes.NewReader(b)}
}

func (r *reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, errors.Wrap(err, "unexpected EOF")
	}
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.pos += uint64(read)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %d bytes", n)
	}
	return buf, nil
}

func (r *reader) remaining() uint64 {
	return uint64(r.r.Len())
}

func (r *reader) readU32() (uint32, error) {
	v, n, err := leb128.DecodeUint32(r.r)
	r.pos += n
	return v, err
}

func (r *reader) readU64() (uint64, error) {
	v, n, err := leb128.DecodeUint64(r.r)
	r.pos += n
	return v, err
}

func (r *reader) readS32() (int32, error) {
	v, n, err := leb128.DecodeInt32(r.r)
	r.pos += n
	return v, err
}

func (r *reader) readS33AsS64() (int64, error) {
	v, n, err := leb128.DecodeInt33AsInt64(r.r)
	r.pos += n
	return v, err
}

func (r *reader) readS64() (int64, error) {
	v, n, err := leb128.DecodeInt64(r.r)
	r.pos += n
	return v, err
}

func (r *reader) readF32() (float32, error) {
	raw, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	bits := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	return ieee754.Float32frombits(bits), nil
}

func (r *reader) readF64() (float64, error) {
	raw, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(raw[i]) << (8 * i)
	}
	return ieee754.Float64frombits(bits), nil
}

// readName reads a length-prefixed UTF-8 string, as used for custom section
// names, import/export module and field names, and local/param debug names.
func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", errors.Wrap(err, "failed to read name length")
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", errors.Wrap(err, "failed to read name bytes")
	}
	return string(b), nil
}

func (r *reader) readLimits() (wasm.ResizableLimits, error) {
	flag, err := r.readByte()
	if err != nil {
		return wasm.ResizableLimits{}, errors.Wrap(err, "failed to read limits flag")
	}
	initial, err := r.readU32()
	if err != nil {
		return wasm.ResizableLimits{}, errors.Wrap(err, "failed to read limits initial")
	}
	limits := wasm.ResizableLimits{Initial: initial}
	if flag == 1 {
		max, err := r.readU32()
		if err != nil {
			return wasm.ResizableLimits{}, errors.Wrap(err, "failed to read limits maximum")
		}
		limits.Maximum = &max
	}
	return limits, nil
}
