// Package codec implements the binary substrate shared by the offline
// handshake, the reliability layer and the Bedrock login packets:
// fixed-width integers in both endiannesses, ULEB128 varints, and the
// length-prefixed strings and socket addresses RakNet/Bedrock wire
// formats use.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
)

// Reader reads sequentially from a byte slice, tracking how much has
// been consumed. It never panics on a short buffer; every method
// returns an error instead so a malformed datagram can be dropped by
// the caller without crashing the connection.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, fmt.Errorf("codec: short buffer: need %d, have %d", n, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

func (r *Reader) Bytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *Reader) Uint16LE() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint16BE() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Uint24LE() (uint32, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

func (r *Reader) Uint24BE() (uint32, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16, nil
}

func (r *Reader) Uint32LE() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint32BE() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Uint64LE() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Uint64BE() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Uint128BE reads a 128-bit value as two big-endian 64-bit halves,
// used by a handful of Bedrock protocol fields that widen beyond 64
// bits (entity unique ids in some third-party extensions).
func (r *Reader) Uint128BE() (hi uint64, lo uint64, err error) {
	hi, err = r.Uint64BE()
	if err != nil {
		return 0, 0, err
	}
	lo, err = r.Uint64BE()
	return hi, lo, err
}

func (r *Reader) Float32LE() (float32, error) {
	v, err := r.Uint32LE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Varuint32 reads a ULEB128-encoded uint32 of at most 5 bytes.
func (r *Reader) Varuint32() (uint32, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		b, err := r.Uint8()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("codec: varuint32 exceeds 5 bytes")
}

// Varuint64 reads a ULEB128-encoded uint64 of at most 10 bytes.
func (r *Reader) Varuint64() (uint64, error) {
	var v uint64
	for i := 0; i < 10; i++ {
		b, err := r.Uint8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("codec: varuint64 exceeds 10 bytes")
}

// Varint32 reads a zigzag-encoded signed 32-bit varint.
func (r *Reader) Varint32() (int32, error) {
	u, err := r.Varuint32()
	if err != nil {
		return 0, err
	}
	return int32(u>>1) ^ -int32(u&1), nil
}

// Varint64 reads a zigzag-encoded signed 64-bit varint.
func (r *Reader) Varint64() (int64, error) {
	u, err := r.Varuint64()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// StringVaruint reads a varuint32-length-prefixed UTF-8 string, the
// form used throughout Bedrock game packets.
func (r *Reader) StringVaruint() (string, error) {
	n, err := r.Varuint32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StringUint16BE reads a big-endian u16-length-prefixed string, the
// form RakNet offline exchanges use (e.g. the unconnected pong's
// server-info field).
func (r *Reader) StringUint16BE() (string, error) {
	n, err := r.Uint16BE()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StringUint16LE reads a little-endian u16-length-prefixed string, the
// form NBT uses for tag names and string payloads.
func (r *Reader) StringUint16LE() (string, error) {
	n, err := r.Uint16LE()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Address reads a RakNet-framed socket address: a tag byte (4 or 6)
// followed by the address fields for that family.
func (r *Reader) Address() (*net.UDPAddr, error) {
	tag, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 4:
		ipBytes, err := r.Bytes(4)
		if err != nil {
			return nil, err
		}
		port, err := r.Uint16BE()
		if err != nil {
			return nil, err
		}
		return &net.UDPAddr{IP: net.IPv4(ipBytes[0], ipBytes[1], ipBytes[2], ipBytes[3]), Port: int(port)}, nil
	case 6:
		if _, err := r.Uint16LE(); err != nil { // AF_INET6 family marker
			return nil, err
		}
		port, err := r.Uint16BE()
		if err != nil {
			return nil, err
		}
		if _, err := r.Uint32BE(); err != nil { // flow info
			return nil, err
		}
		ipBytes, err := r.Bytes(16)
		if err != nil {
			return nil, err
		}
		if _, err := r.Uint32BE(); err != nil { // scope id
			return nil, err
		}
		return &net.UDPAddr{IP: net.IP(ipBytes), Port: int(port)}, nil
	default:
		return nil, fmt.Errorf("codec: unsupported address family tag %d", tag)
	}
}

// BlockPos reads a block position: x (signed varint), y (unsigned
// varint), z (signed varint).
func (r *Reader) BlockPos() (x int32, y uint32, z int32, err error) {
	if x, err = r.Varint32(); err != nil {
		return
	}
	if y, err = r.Varuint32(); err != nil {
		return
	}
	z, err = r.Varint32()
	return
}
