package binary

import (
	"bytes"

	"github.com/vela-wasm/vela/internal/ieee754"
	"github.com/vela-wasm/vela/internal/leb128"
	"github.com/vela-wasm/vela/internal/wasm"
)

// writer accumulates encoded bytes. Unlike reader it needs no position
// tracking: encoding never needs to report an offset.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) writeBytes(b []byte) {
	w.buf.Write(b)
}

func (w *writer) writeU32(v uint32) {
	w.buf.Write(leb128.EncodeUint32(v))
}

func (w *writer) writeU64(v uint64) {
	w.buf.Write(leb128.EncodeUint64(v))
}

func (w *writer) writeS32(v int32) {
	w.buf.Write(leb128.EncodeInt32(v))
}

func (w *writer) writeS33(v int64) {
	w.buf.Write(leb128.EncodeInt33(v))
}

func (w *writer) writeS64(v int64) {
	w.buf.Write(leb128.EncodeInt64(v))
}

func (w *writer) writeF32(v float32) {
	bits := ieee754.Float32bits(v)
	w.buf.Write([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
}

func (w *writer) writeF64(v float64) {
	bits := ieee754.Float64bits(v)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
	w.buf.Write(b)
}

func (w *writer) writeName(s string) {
	w.writeU32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) writeLimits(l wasm.ResizableLimits) {
	if l.Maximum != nil {
		w.writeByte(1)
		w.writeU32(l.Initial)
		w.writeU32(*l.Maximum)
	} else {
		w.writeByte(0)
		w.writeU32(l.Initial)
	}
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

// writeRawU32 writes v as 4 raw little-endian bytes, for the module header's
// fixed-width magic/version fields, as opposed to writeU32's variable-length
// LEB128 encoding used throughout the rest of the format.
func (w *writer) writeRawU32(v uint32) {
	w.writeBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
