package raknet

import (
	"bedrockd/source/codec"
)

// FrameBatch wraps one or more frames under a single datagram sequence
// number (spec 3, "frame batch (datagram)").
type FrameBatch struct {
	SequenceNumber uint32 // 24-bit
	Frames         []*Frame
}

func (b *FrameBatch) Encode() []byte {
	w := codec.NewWriter()
	w.Uint8(FlagConnected)
	w.Uint24LE(b.SequenceNumber)
	for _, f := range b.Frames {
		f.Encode(w)
	}
	return w.Bytes()
}

// DecodeFrameBatch parses a connected datagram that is neither an ACK
// nor a NAK (the leading flag byte already consumed by the caller).
func DecodeFrameBatch(r *codec.Reader) (*FrameBatch, error) {
	seq, err := r.Uint24LE()
	if err != nil {
		return nil, err
	}
	b := &FrameBatch{SequenceNumber: seq}
	for r.Remaining() > 0 {
		f, err := DecodeFrame(r)
		if err != nil {
			return nil, err
		}
		b.Frames = append(b.Frames, f)
	}
	return b, nil
}
