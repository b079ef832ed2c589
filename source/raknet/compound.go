package raknet

import (
	"time"

	"bedrockd/source/errs"
)

const (
	// maxCompoundSize bounds how many fragments a single compound id
	// may claim, so one crafted CompoundSize can't force an unbounded
	// pieces map.
	maxCompoundSize = 1024
	// maxPendingCompounds bounds how many distinct incomplete compound
	// ids the collector tracks at once, so a peer sending many
	// single-fragment compounds with distinct ids can't grow it
	// without bound.
	maxPendingCompounds = 64
)

// compoundEntry tracks the pieces of one fragmented logical frame
// while they arrive out of order.
type compoundEntry struct {
	size      uint32
	pieces    map[uint32]*Frame
	firstSeen time.Time
}

// CompoundCollector reassembles fragments sharing a compound id into
// a single logical frame (spec 3, "compound collector"). It is owned
// exclusively by one connection's inbound pump; no locking required.
type CompoundCollector struct {
	entries map[uint16]*compoundEntry
}

func NewCompoundCollector() *CompoundCollector {
	return &CompoundCollector{entries: make(map[uint16]*compoundEntry)}
}

// Insert adds a fragment. It returns the reassembled frame and true
// once every index 0..size-1 of its compound has arrived; a fragment
// at an already-seen (compoundID, compoundIndex) is dropped to
// satisfy the "processed at most once" invariant (spec 3). A fragment
// claiming an out-of-range or oversized compound, or one whose size
// disagrees with an already-tracked compound of the same id, is
// reported as a Malformed error instead of being inserted, so the
// caller can close the connection rather than index out of bounds.
func (c *CompoundCollector) Insert(f *Frame) (*Frame, bool, error) {
	if f.CompoundSize == 0 || f.CompoundSize > maxCompoundSize {
		return nil, false, errs.New(errs.Malformed, "raknet: compound size out of range")
	}
	if f.CompoundIndex >= f.CompoundSize {
		return nil, false, errs.New(errs.Malformed, "raknet: compound index out of range")
	}

	e, ok := c.entries[f.CompoundID]
	if !ok {
		if len(c.entries) >= maxPendingCompounds {
			c.evictOldest()
		}
		e = &compoundEntry{size: f.CompoundSize, pieces: make(map[uint32]*Frame), firstSeen: time.Now()}
		c.entries[f.CompoundID] = e
	} else if e.size != f.CompoundSize {
		return nil, false, errs.New(errs.Malformed, "raknet: compound size mismatch")
	}

	if _, dup := e.pieces[f.CompoundIndex]; dup {
		return nil, false, nil
	}
	e.pieces[f.CompoundIndex] = f
	if uint32(len(e.pieces)) < e.size {
		return nil, false, nil
	}

	total := 0
	for i := uint32(0); i < e.size; i++ {
		total += len(e.pieces[i].Body)
	}
	body := make([]byte, 0, total)
	for i := uint32(0); i < e.size; i++ {
		body = append(body, e.pieces[i].Body...)
	}

	first := e.pieces[0]
	delete(c.entries, f.CompoundID)

	return &Frame{
		Reliability:   first.Reliability,
		ReliableIndex: first.ReliableIndex,
		SequenceIndex: first.SequenceIndex,
		OrderChannel:  first.OrderChannel,
		OrderIndex:    first.OrderIndex,
		Body:          body,
	}, true, nil
}

// evictOldest drops the longest-waiting incomplete compound, called
// when a new compound id would push the collector past
// maxPendingCompounds.
func (c *CompoundCollector) evictOldest() {
	var oldestID uint16
	var oldest time.Time
	found := false
	for id, e := range c.entries {
		if !found || e.firstSeen.Before(oldest) {
			oldestID, oldest, found = id, e.firstSeen, true
		}
	}
	if found {
		delete(c.entries, oldestID)
	}
}
