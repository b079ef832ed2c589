package raknet

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}

func newTestConnection(mtu int) *Connection {
	return NewConnection(Config{
		Addr: net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19132},
		MTU:  mtu,
		Send: func([]byte) error { return nil },
		Log:  noopLogger{},
		Dispatch: func([]byte) error { return nil },
	})
}

func TestReliableIndicesContiguousAndDense(t *testing.T) {
	c := newTestConnection(1492)
	for i := 0; i < 10; i++ {
		c.Send([]byte("payload"), Reliable, 0, PriorityHigh)
	}
	c.flush()

	seen := map[uint32]bool{}
	for seq := range c.recovery.entries {
		for _, f := range c.recovery.entries[seq].frames {
			assert.False(t, seen[f.ReliableIndex], "duplicate reliable index")
			seen[f.ReliableIndex] = true
		}
	}
	assert.Len(t, seen, 10)
	for i := uint32(0); i < 10; i++ {
		assert.True(t, seen[i], "missing reliable index %d", i)
	}
}

func TestBodyExactlyAtBudgetIsUnfragmented(t *testing.T) {
	c := newTestConnection(1492)
	overhead := (&Frame{Reliability: ReliableOrdered, OrderChannel: 0}).HeaderSize()
	budget := c.MTU - overhead - 4

	c.Send(make([]byte, budget), ReliableOrdered, 0, PriorityHigh)
	require.Len(t, c.queues[PriorityHigh], 1)
	assert.False(t, c.queues[PriorityHigh][0].IsCompound)
}

func TestBodyOneByteOverBudgetFragmentsIntoTwo(t *testing.T) {
	c := newTestConnection(1492)
	overhead := (&Frame{Reliability: ReliableOrdered, OrderChannel: 0}).HeaderSize()
	budget := c.MTU - overhead - 4

	c.Send(make([]byte, budget+1), ReliableOrdered, 0, PriorityHigh)
	require.Len(t, c.queues[PriorityHigh], 2)
	for _, f := range c.queues[PriorityHigh] {
		assert.True(t, f.IsCompound)
		assert.Equal(t, uint32(2), f.CompoundSize)
	}
	assert.Equal(t, c.queues[PriorityHigh][0].OrderIndex, c.queues[PriorityHigh][1].OrderIndex)
	assert.NotEqual(t, c.queues[PriorityHigh][0].ReliableIndex, c.queues[PriorityHigh][1].ReliableIndex)
}

func TestLargeReliableOrderedBodyFragmentsShareOrderIndex(t *testing.T) {
	c := newTestConnection(1500)
	c.Send(make([]byte, 5000), ReliableOrdered, 0, PriorityHigh)

	frames := c.queues[PriorityHigh]
	require.GreaterOrEqual(t, len(frames), 4)
	id := frames[0].CompoundID
	orderIdx := frames[0].OrderIndex
	seen := map[uint32]bool{}
	for _, f := range frames {
		assert.Equal(t, id, f.CompoundID)
		assert.Equal(t, orderIdx, f.OrderIndex)
		assert.False(t, seen[f.ReliableIndex])
		seen[f.ReliableIndex] = true
	}
}
