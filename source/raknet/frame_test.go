package raknet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockd/source/codec"
	"bedrockd/source/errs"
)

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{
		Reliability:   ReliableOrdered,
		ReliableIndex: 7,
		OrderChannel:  2,
		OrderIndex:    9,
		Body:          []byte{0x01, 0x02, 0x03},
	}
	w := codec.NewWriter()
	f.Encode(w)

	r := codec.NewReader(w.Bytes())
	got, err := DecodeFrame(r)
	require.NoError(t, err)
	assert.Equal(t, f.Reliability, got.Reliability)
	assert.Equal(t, f.ReliableIndex, got.ReliableIndex)
	assert.Equal(t, f.OrderChannel, got.OrderChannel)
	assert.Equal(t, f.OrderIndex, got.OrderIndex)
	assert.Equal(t, f.Body, got.Body)
}

func TestFrameBatchRoundTrip(t *testing.T) {
	batch := &FrameBatch{
		SequenceNumber: 123456,
		Frames: []*Frame{
			{Reliability: Unreliable, Body: []byte("a")},
			{Reliability: Reliable, ReliableIndex: 1, Body: []byte("bb")},
			{Reliability: ReliableOrdered, ReliableIndex: 2, OrderChannel: 1, OrderIndex: 0, Body: []byte("ccc")},
		},
	}
	encoded := batch.Encode()

	r := codec.NewReader(encoded[1:]) // strip the leading flag byte, as handleDatagram does
	decoded, err := DecodeFrameBatch(r)
	require.NoError(t, err)
	assert.Equal(t, batch.SequenceNumber, decoded.SequenceNumber)
	require.Len(t, decoded.Frames, 3)
	for i := range batch.Frames {
		assert.Equal(t, batch.Frames[i].Body, decoded.Frames[i].Body)
		assert.Equal(t, batch.Frames[i].Reliability, decoded.Frames[i].Reliability)
	}
}

func TestCompoundReassembly(t *testing.T) {
	c := NewCompoundCollector()
	pieces := []*Frame{
		{IsCompound: true, CompoundID: 5, CompoundSize: 3, CompoundIndex: 1, Body: []byte("BB"), Reliability: ReliableOrdered, OrderChannel: 0, OrderIndex: 4},
		{IsCompound: true, CompoundID: 5, CompoundSize: 3, CompoundIndex: 0, Body: []byte("AA"), Reliability: ReliableOrdered, OrderChannel: 0, OrderIndex: 4},
		{IsCompound: true, CompoundID: 5, CompoundSize: 3, CompoundIndex: 2, Body: []byte("CC"), Reliability: ReliableOrdered, OrderChannel: 0, OrderIndex: 4},
	}
	var out *Frame
	for _, p := range pieces {
		if f, done, err := c.Insert(p); err == nil && done {
			out = f
		}
	}
	require.NotNil(t, out)
	assert.Equal(t, []byte("AABBCC"), out.Body)
	assert.Equal(t, ReliableOrdered, out.Reliability)
	assert.Equal(t, uint32(4), out.OrderIndex)
}

func TestCompoundFragmentProcessedAtMostOnce(t *testing.T) {
	c := NewCompoundCollector()
	f := &Frame{IsCompound: true, CompoundID: 1, CompoundSize: 2, CompoundIndex: 0, Body: []byte("x")}
	_, done, err := c.Insert(f)
	require.NoError(t, err)
	assert.False(t, done)
	_, done, err = c.Insert(f) // duplicate piece, same index
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCompoundIndexOutOfRangeIsMalformed(t *testing.T) {
	c := NewCompoundCollector()
	f := &Frame{IsCompound: true, CompoundID: 2, CompoundSize: 1, CompoundIndex: 5, Body: []byte("x")}
	_, done, err := c.Insert(f)
	require.Error(t, err)
	assert.False(t, done)
	assert.Equal(t, errs.Malformed, errs.KindOf(err))
}

func TestCompoundSizeZeroIsMalformed(t *testing.T) {
	c := NewCompoundCollector()
	f := &Frame{IsCompound: true, CompoundID: 3, CompoundSize: 0, CompoundIndex: 0, Body: []byte("x")}
	_, done, err := c.Insert(f)
	require.Error(t, err)
	assert.False(t, done)
}

func TestCompoundSizeMismatchAcrossFragmentsIsMalformed(t *testing.T) {
	c := NewCompoundCollector()
	_, _, err := c.Insert(&Frame{IsCompound: true, CompoundID: 4, CompoundSize: 2, CompoundIndex: 0, Body: []byte("a")})
	require.NoError(t, err)
	_, done, err := c.Insert(&Frame{IsCompound: true, CompoundID: 4, CompoundSize: 99, CompoundIndex: 1, Body: []byte("b")})
	require.Error(t, err)
	assert.False(t, done)
}

func TestOrderChannelsStrictlyIncreasing(t *testing.T) {
	oc := NewOrderChannels()
	var delivered []uint32

	accept := func(idx uint32) {
		released, _ := oc.Accept(&Frame{Reliability: ReliableOrdered, OrderChannel: 0, OrderIndex: idx, Body: []byte{byte(idx)}})
		for _, f := range released {
			delivered = append(delivered, f.OrderIndex)
		}
	}

	accept(2) // arrives early, buffered
	accept(0)
	accept(1)
	accept(3)

	require.Equal(t, []uint32{0, 1, 2, 3}, delivered)
}

func TestOrderChannelsDuplicateDropped(t *testing.T) {
	oc := NewOrderChannels()
	released, ok := oc.Accept(&Frame{Reliability: ReliableOrdered, OrderChannel: 0, OrderIndex: 0})
	require.True(t, ok)
	require.Len(t, released, 1)

	_, ok = oc.Accept(&Frame{Reliability: ReliableOrdered, OrderChannel: 0, OrderIndex: 0})
	assert.False(t, ok)
}

func TestSequencedStaleDropped(t *testing.T) {
	oc := NewOrderChannels()
	_, ok := oc.Accept(&Frame{Reliability: ReliableSequenced, OrderChannel: 0, OrderIndex: 0, SequenceIndex: 5})
	require.True(t, ok)

	_, ok = oc.Accept(&Frame{Reliability: ReliableSequenced, OrderChannel: 0, OrderIndex: 1, SequenceIndex: 3})
	assert.False(t, ok)
}
