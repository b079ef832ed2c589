package raknet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockd/source/codec"
)

func TestCoalesceSequencesExample(t *testing.T) {
	records := CoalesceSequences([]uint32{3, 4, 5, 7, 9, 10})
	require.Equal(t, []ACKRecord{
		{Start: 3, End: 5},
		{Start: 7, End: 7},
		{Start: 9, End: 10},
	}, records)
}

func TestACKListRoundTrip(t *testing.T) {
	records := CoalesceSequences([]uint32{1, 2, 3, 10, 20, 21})
	encoded := EncodeACKList(FlagACK, records)

	assert.Equal(t, byte(FlagConnected|FlagACK), encoded[0])
	r := codec.NewReader(encoded[1:])
	decoded, err := DecodeACKList(r)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestRecoveryQueueNakNoLongerPresentIsNoOp(t *testing.T) {
	q := NewRecoveryQueue()
	frames := q.Nak(999)
	assert.Nil(t, frames)
}

func TestRecoveryQueueAckRemovesOnlyKnown(t *testing.T) {
	q := NewRecoveryQueue()
	reliable := []*Frame{{Reliability: Reliable, ReliableIndex: 0, Body: []byte("a")}}
	q.Put(1, reliable)
	q.Put(2, reliable)

	for _, seq := range ExpandRecords([]ACKRecord{{Start: 1, End: 3}}) {
		q.Ack(seq)
	}
	assert.Equal(t, 0, q.Len())
}
