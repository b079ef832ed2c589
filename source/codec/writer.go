package codec

import (
	"encoding/binary"
	"math"
	"net"
)

// Writer accumulates bytes for an outbound packet. It never fails;
// growth is handled by append, matching the teacher's BitStream.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) Uint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) Int8(v int8)     { w.Uint8(uint8(v)) }
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) Uint16LE(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint16BE(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint24LE(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16))
}

func (w *Writer) Uint24BE(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) Uint32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint32BE(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint64LE(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint64BE(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint128BE(hi, lo uint64) {
	w.Uint64BE(hi)
	w.Uint64BE(lo)
}

func (w *Writer) Float32LE(f float32) {
	w.Uint32LE(math.Float32bits(f))
}

// Varuint32 writes a ULEB128-encoded uint32 (1 to 5 bytes).
func (w *Writer) Varuint32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.Uint8(b | 0x80)
		} else {
			w.Uint8(b)
			return
		}
	}
}

// Varuint64 writes a ULEB128-encoded uint64 (1 to 10 bytes).
func (w *Writer) Varuint64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.Uint8(b | 0x80)
		} else {
			w.Uint8(b)
			return
		}
	}
}

func (w *Writer) Varint32(v int32) {
	w.Varuint32(uint32((v << 1) ^ (v >> 31)))
}

func (w *Writer) Varint64(v int64) {
	w.Varuint64(uint64((v << 1) ^ (v >> 63)))
}

func (w *Writer) StringVaruint(s string) {
	w.Varuint32(uint32(len(s)))
	w.Raw([]byte(s))
}

func (w *Writer) StringUint16BE(s string) {
	w.Uint16BE(uint16(len(s)))
	w.Raw([]byte(s))
}

func (w *Writer) StringUint16LE(s string) {
	w.Uint16LE(uint16(len(s)))
	w.Raw([]byte(s))
}

// Address writes a RakNet-framed socket address.
func (w *Writer) Address(addr *net.UDPAddr) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		w.Uint8(4)
		w.Raw(ip4)
		w.Uint16BE(uint16(addr.Port))
		return
	}
	w.Uint8(6)
	w.Uint16LE(0x17) // AF_INET6 on the wire per RakNet convention
	w.Uint16BE(uint16(addr.Port))
	w.Uint32BE(0) // flow info
	ip16 := addr.IP.To16()
	if ip16 == nil {
		ip16 = make([]byte, 16)
	}
	w.Raw(ip16)
	w.Uint32BE(0) // scope id
}

// BlockPos writes a block position: x (signed varint), y (unsigned
// varint), z (signed varint).
func (w *Writer) BlockPos(x int32, y uint32, z int32) {
	w.Varint32(x)
	w.Varuint32(y)
	w.Varint32(z)
}
