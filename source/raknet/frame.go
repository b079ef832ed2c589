package raknet

import (
	"fmt"

	"bedrockd/source/codec"
)

// Frame is the unit of reliable transport described in spec 3: a
// reliability mode, the counters that mode requires, optional
// fragmentation metadata, and an opaque body.
type Frame struct {
	Reliability Reliability

	ReliableIndex uint32 // 24-bit, valid iff Reliability.IsReliable()
	SequenceIndex uint32 // 24-bit, valid iff Reliability.IsSequenced()
	OrderChannel  uint8  // 0-31, valid iff Reliability.HasOrderIndex()
	OrderIndex    uint32 // 24-bit, valid iff Reliability.HasOrderIndex()

	IsCompound    bool
	CompoundID    uint16
	CompoundSize  uint32
	CompoundIndex uint32

	Body []byte
}

// HeaderSize returns the encoded size of everything but Body, used by
// the outbound fragmenter to compute how much payload fits in one MTU.
func (f *Frame) HeaderSize() int {
	size := 1 + 2 // flags + body_bits
	if f.Reliability.IsReliable() {
		size += 3
	}
	if f.Reliability.IsSequenced() {
		size += 3
	}
	if f.Reliability.HasOrderIndex() {
		size += 4
	}
	if f.IsCompound {
		size += 4 + 2 + 4
	}
	return size
}

func (f *Frame) EncodedSize() int {
	return f.HeaderSize() + len(f.Body)
}

// Encode appends this frame's wire representation to w.
func (f *Frame) Encode(w *codec.Writer) {
	flags := byte(f.Reliability) << 5
	if f.IsCompound {
		flags |= 0x10
	}
	w.Uint8(flags)
	w.Uint16BE(uint16(len(f.Body)) * 8)

	if f.Reliability.IsReliable() {
		w.Uint24LE(f.ReliableIndex)
	}
	if f.Reliability.IsSequenced() {
		w.Uint24LE(f.SequenceIndex)
	}
	if f.Reliability.HasOrderIndex() {
		w.Uint24LE(f.OrderIndex)
		w.Uint8(f.OrderChannel)
	}
	if f.IsCompound {
		w.Uint32BE(f.CompoundSize)
		w.Uint16BE(f.CompoundID)
		w.Uint32BE(f.CompoundIndex)
	}
	w.Raw(f.Body)
}

// DecodeFrame reads one frame from r. Returns io-style error on short
// buffer or unknown reliability value so the caller can drop the
// enclosing datagram per spec 7 (Malformed).
func DecodeFrame(r *codec.Reader) (*Frame, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	reliability := Reliability((flags >> 5) & 0x07)
	if reliability > ReliableOrderedWithAckReceipt {
		return nil, fmt.Errorf("raknet: unknown reliability %d", reliability)
	}
	isCompound := flags&0x10 != 0

	bodyBits, err := r.Uint16BE()
	if err != nil {
		return nil, err
	}
	bodyLen := int(bodyBits+7) / 8

	f := &Frame{Reliability: reliability, IsCompound: isCompound}

	if reliability.IsReliable() {
		if f.ReliableIndex, err = r.Uint24LE(); err != nil {
			return nil, err
		}
	}
	if reliability.IsSequenced() {
		if f.SequenceIndex, err = r.Uint24LE(); err != nil {
			return nil, err
		}
	}
	if reliability.HasOrderIndex() {
		if f.OrderIndex, err = r.Uint24LE(); err != nil {
			return nil, err
		}
		oc, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		f.OrderChannel = oc
	}
	if isCompound {
		if f.CompoundSize, err = r.Uint32BE(); err != nil {
			return nil, err
		}
		if f.CompoundID, err = r.Uint16BE(); err != nil {
			return nil, err
		}
		if f.CompoundIndex, err = r.Uint32BE(); err != nil {
			return nil, err
		}
	}

	body, err := r.Bytes(bodyLen)
	if err != nil {
		return nil, err
	}
	f.Body = body
	return f, nil
}

// Clone returns a deep-enough copy for re-enqueueing on NAK, where the
// frame is resent with its original indices untouched.
func (f *Frame) Clone() *Frame {
	cp := *f
	cp.Body = append([]byte(nil), f.Body...)
	return &cp
}
