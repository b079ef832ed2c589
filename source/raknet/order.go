package raknet

// orderChannelState is one of the (up to 32) logical ordering streams
// described in spec 3 ("order channel"): frames buffer here until
// every earlier order_index has been released.
type orderChannelState struct {
	nextIndex uint32
	buffered  map[uint32]*Frame
}

// OrderChannels owns every per-connection order channel plus the
// per-channel "latest sequence index seen" used to drop stale
// sequenced frames (spec 4.3.1 step 1). It is only ever touched by a
// connection's own inbound pump, so it needs no locking.
type OrderChannels struct {
	channels       map[uint8]*orderChannelState
	latestSequence map[uint8]uint32
	seenSequence   map[uint8]bool
}

func NewOrderChannels() *OrderChannels {
	return &OrderChannels{
		channels:       make(map[uint8]*orderChannelState),
		latestSequence: make(map[uint8]uint32),
		seenSequence:   make(map[uint8]bool),
	}
}

func (o *OrderChannels) channel(id uint8) *orderChannelState {
	c, ok := o.channels[id]
	if !ok {
		c = &orderChannelState{buffered: make(map[uint32]*Frame)}
		o.channels[id] = c
	}
	return c
}

// Accept runs a decoded, de-fragmented frame through the stale filter
// and ordering buffer. It returns the frames now ready for delivery,
// in release order, and whether any frame was released. The bool is
// false for a stale sequenced frame or an already-delivered order index
// (both silently dropped, matching spec 4.3.1) and also for a frame
// that was buffered to wait for an earlier order index.
func (o *OrderChannels) Accept(f *Frame) ([]*Frame, bool) {
	if f.Reliability.IsSequenced() {
		if o.seenSequence[f.OrderChannel] && f.SequenceIndex < o.latestSequence[f.OrderChannel] {
			return nil, false
		}
		o.latestSequence[f.OrderChannel] = f.SequenceIndex
		o.seenSequence[f.OrderChannel] = true
	}

	if !f.Reliability.HasOrderIndex() {
		return []*Frame{f}, true
	}

	c := o.channel(f.OrderChannel)
	if f.OrderIndex < c.nextIndex {
		// Already delivered; duplicate ordered frame (e.g. a
		// retransmit racing a NAK). Drop to preserve idempotence.
		return nil, false
	}
	c.buffered[f.OrderIndex] = f

	var released []*Frame
	for {
		next, ok := c.buffered[c.nextIndex]
		if !ok {
			break
		}
		delete(c.buffered, c.nextIndex)
		released = append(released, next)
		c.nextIndex++
	}
	return released, len(released) > 0
}
