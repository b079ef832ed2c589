package raknet

import "time"

type recoveryEntry struct {
	frames []*Frame
	sentAt time.Time
}

// RecoveryQueue maps outgoing datagram sequence numbers to the
// reliable frames they carried, pending ACK (spec 3, "recovery
// queue"). It has no locking of its own: the owning Connection touches
// it from both its flusher and its inbound pump, always under c.mu.
type RecoveryQueue struct {
	entries map[uint32]*recoveryEntry
}

func NewRecoveryQueue() *RecoveryQueue {
	return &RecoveryQueue{entries: make(map[uint32]*recoveryEntry)}
}

func (q *RecoveryQueue) Put(seq uint32, frames []*Frame) {
	hasReliable := false
	for _, f := range frames {
		if f.Reliability.IsReliable() {
			hasReliable = true
			break
		}
	}
	if !hasReliable {
		return
	}
	q.entries[seq] = &recoveryEntry{frames: frames, sentAt: time.Now()}
}

// Ack removes the entry for seq, if any.
func (q *RecoveryQueue) Ack(seq uint32) {
	delete(q.entries, seq)
}

// Nak returns the frames that were in datagram seq, or nil if the
// entry is no longer present (a no-op per spec 8's boundary behavior:
// "a NAK referencing a sequence number no longer in the recovery
// queue is a no-op").
func (q *RecoveryQueue) Nak(seq uint32) []*Frame {
	e, ok := q.entries[seq]
	if !ok {
		return nil
	}
	delete(q.entries, seq)
	return e.frames
}

// EvictExpired drops entries older than RecoveryTTL, a defensive cap
// independent of ACK/NAK arrival (spec 4.3.4).
func (q *RecoveryQueue) EvictExpired(now time.Time) {
	for seq, e := range q.entries {
		if now.Sub(e.sentAt) > RecoveryTTL {
			delete(q.entries, seq)
		}
	}
}

func (q *RecoveryQueue) Len() int { return len(q.entries) }
