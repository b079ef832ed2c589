package raknet

import (
	"context"
	"net"
	"sync"
	"time"

	"bedrockd/source/codec"
	"bedrockd/source/errs"
)

// Dispatcher receives a single decoded, de-fragmented, in-order frame
// body (spec 4.3.2, frame-body dispatcher). It returns an error of
// kind errs.Violation/errs.Malformed to close the connection, or nil.
type Dispatcher func(body []byte) error

// Connection is one peer's RakNet reliability state: frame decoding,
// reassembly, ordering, ACK/NAK bookkeeping, recovery and the
// outbound priority pipeline. It knows nothing about Bedrock login;
// that lives one layer up and is reached through Dispatcher.
type Connection struct {
	Addr net.UDPAddr
	GUID uint64
	MTU  int

	send func([]byte) error
	log  Logger

	dispatch   Dispatcher
	onReady    func() // fired once, first time the RakNet handshake finishes
	readyOnce  sync.Once

	inbound chan []byte

	mu             sync.Mutex
	reliableIndex  uint32
	sequenceIndex  uint32
	orderIndex     map[uint8]uint32
	compoundID     uint16
	datagramSeq    uint32
	inboundDatagramSeq uint32
	queues         [3][]*Frame
	pendingACKs    map[uint32]struct{}
	recovery       *RecoveryQueue

	compounds *CompoundCollector
	order     *OrderChannels

	lastUpdate time.Time
	closed     bool
	closeOnce  sync.Once
	cancel     context.CancelFunc

	tick int
}

// Logger is the narrow slice of structured logging the reliability
// layer needs; satisfied by the *zap.SugaredLogger from pkg/logger.Sugared.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// Config bundles the construction-time dependencies of a Connection,
// letting the user map hand out a read-only dependency set instead of
// connections holding back-references to it (design note: arena +
// handles, not cyclic ownership).
type Config struct {
	Addr       net.UDPAddr
	GUID       uint64
	MTU        int
	Send       func([]byte) error
	Log        Logger
	Dispatch   Dispatcher
	OnReady    func()
}

func NewConnection(cfg Config) *Connection {
	return &Connection{
		Addr:        cfg.Addr,
		GUID:        cfg.GUID,
		MTU:         cfg.MTU,
		send:        cfg.Send,
		log:         cfg.Log,
		dispatch:    cfg.Dispatch,
		onReady:     cfg.OnReady,
		inbound:     make(chan []byte, 5),
		orderIndex:  make(map[uint8]uint32),
		pendingACKs: make(map[uint32]struct{}),
		recovery:    NewRecoveryQueue(),
		compounds:   NewCompoundCollector(),
		order:       NewOrderChannels(),
		lastUpdate:  time.Now(),
	}
}

// SetDispatch wires the frame-body dispatcher after construction, for
// callers (the user map) that need a *Connection handle to build a
// dispatcher closure around before the connection exists. Must be
// called before Run; unsynchronized like the rest of Config.
func (c *Connection) SetDispatch(d Dispatcher) {
	c.dispatch = d
}

// Forward hands one raw datagram payload to this connection's inbound
// channel, applying the 10ms send-timeout of spec 4.1. A timeout is
// reported to the caller but never closes the connection by itself.
func (c *Connection) Forward(data []byte) error {
	select {
	case c.inbound <- data:
		return nil
	case <-time.After(ForwardTimeout):
		return errs.New(errs.Timeout, "raknet: forward timed out")
	}
}

// Ready signals that the RakNet layer considers this connection
// handshake-complete; the built-in dispatcher calls it on the first
// ConnectionRequest or NewIncomingConnection frame. The user map uses
// this to promote Connecting -> Connected exactly once.
func (c *Connection) Ready() {
	c.readyOnce.Do(func() {
		if c.onReady != nil {
			c.onReady()
		}
	})
}

// Run starts the inbound pump and outbound flusher; it blocks until
// ctx is cancelled or the connection closes itself on a protocol
// violation or peer disconnect.
func (c *Connection) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.pump(ctx) }()
	go func() { defer wg.Done(); c.flushLoop(ctx) }()
	wg.Wait()
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
	})
}

func (c *Connection) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.inbound:
			if err := c.handleDatagram(data); err != nil {
				c.log.Warnw("raknet: dropping connection", "addr", c.Addr.String(), "err", err)
				c.Close()
				return
			}
		}
	}
}

func (c *Connection) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(FlushTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.timedOut() {
				c.log.Debugw("raknet: session timeout", "addr", c.Addr.String())
				c.Close()
				return
			}
			c.flush()
		}
	}
}

func (c *Connection) timedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastUpdate) > SessionTimeout
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}

// handleDatagram implements spec 4.3.1: ACK/NAK/frame-batch dispatch
// on one raw connected datagram.
func (c *Connection) handleDatagram(data []byte) error {
	c.touch()
	if len(data) == 0 {
		return nil
	}
	flags := data[0]
	r := codec.NewReader(data[1:])

	switch {
	case flags&FlagACK != 0:
		records, err := DecodeACKList(r)
		if err != nil {
			c.log.Warnw("raknet: malformed ACK", "err", err)
			return nil
		}
		c.handleACK(records)
		return nil
	case flags&FlagNAK != 0:
		records, err := DecodeACKList(r)
		if err != nil {
			c.log.Warnw("raknet: malformed NAK", "err", err)
			return nil
		}
		c.handleNAK(records)
		return nil
	default:
		batch, err := DecodeFrameBatch(r)
		if err != nil {
			c.log.Warnw("raknet: malformed frame batch", "err", err)
			return nil
		}
		return c.handleBatch(batch)
	}
}

func (c *Connection) handleACK(records []ACKRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seq := range ExpandRecords(records) {
		c.recovery.Ack(seq)
	}
}

func (c *Connection) handleNAK(records []ACKRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seq := range ExpandRecords(records) {
		if frames := c.recovery.Nak(seq); frames != nil {
			c.queues[PriorityMedium] = append(c.queues[PriorityMedium], frames...)
		}
	}
}

func (c *Connection) handleBatch(batch *FrameBatch) error {
	c.mu.Lock()
	if batch.SequenceNumber > c.inboundDatagramSeq {
		c.inboundDatagramSeq = batch.SequenceNumber
	}
	hasReliable := false
	for _, f := range batch.Frames {
		if f.Reliability.IsReliable() {
			hasReliable = true
			break
		}
	}
	if hasReliable {
		c.pendingACKs[batch.SequenceNumber] = struct{}{}
	}
	c.mu.Unlock()

	for _, f := range batch.Frames {
		if err := c.processFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// processFrame implements spec 4.3.1 steps 3-5 for one frame: compound
// reassembly, ordering, then delivery to the dispatcher.
func (c *Connection) processFrame(f *Frame) error {
	if f.IsCompound {
		reassembled, done, err := c.compounds.Insert(f)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		return c.processFrame(reassembled)
	}

	released, ok := c.order.Accept(f)
	if !ok {
		return nil
	}
	for _, rf := range released {
		if err := c.dispatch(rf.Body); err != nil {
			return err
		}
	}
	return nil
}

// Send queues an application payload for outbound delivery under the
// given reliability, order channel and priority (spec 4.3.3). Order,
// sequence and reliable indices are assigned, and an oversized body is
// fragmented, here at enqueue time under c.mu; flush only batches the
// queued frames and assigns datagram sequence numbers.
func (c *Connection) Send(body []byte, reliability Reliability, orderChannel uint8, priority Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(body, reliability, orderChannel, priority)
}

func (c *Connection) enqueueLocked(body []byte, reliability Reliability, orderChannel uint8, priority Priority) {
	var orderIdx uint32
	if reliability.HasOrderIndex() {
		orderIdx = c.orderIndex[orderChannel]
		c.orderIndex[orderChannel]++
	}
	var seqIdx uint32
	if reliability.IsSequenced() {
		seqIdx = c.sequenceIndex
		c.sequenceIndex++
	}

	overhead := (&Frame{Reliability: reliability, OrderChannel: orderChannel}).HeaderSize()
	budget := c.MTU - overhead - 4 // 4 = datagram batch header (flag + 3-byte sequence)
	if budget < 1 {
		budget = 1
	}

	frames := c.buildFrames(body, reliability, orderChannel, orderIdx, seqIdx, budget)
	c.queues[priority] = append(c.queues[priority], frames...)
}

func (c *Connection) buildFrames(body []byte, reliability Reliability, orderChannel uint8, orderIdx, seqIdx uint32, budget int) []*Frame {
	if len(body) <= budget {
		f := &Frame{
			Reliability:   reliability,
			OrderChannel:  orderChannel,
			OrderIndex:    orderIdx,
			SequenceIndex: seqIdx,
			Body:          body,
		}
		if reliability.IsReliable() {
			f.ReliableIndex = c.reliableIndex
			c.reliableIndex++
		}
		return []*Frame{f}
	}

	compoundOverhead := 4 + 2 + 4
	chunkSize := budget - compoundOverhead
	if chunkSize < 1 {
		chunkSize = 1
	}
	n := (len(body) + chunkSize - 1) / chunkSize
	id := c.compoundID
	c.compoundID++

	frames := make([]*Frame, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(body) {
			end = len(body)
		}
		f := &Frame{
			Reliability:   reliability,
			OrderChannel:  orderChannel,
			OrderIndex:    orderIdx,
			SequenceIndex: seqIdx,
			IsCompound:    true,
			CompoundID:    id,
			CompoundSize:  uint32(n),
			CompoundIndex: uint32(i),
			Body:          body[start:end],
		}
		if reliability.IsReliable() {
			f.ReliableIndex = c.reliableIndex
			c.reliableIndex++
		}
		frames = append(frames, f)
	}
	return frames
}

// flush implements the tick-based send pipeline of spec 4.3.3: High
// flushes every tick, Medium every 2nd, Low every 4th, pending ACKs
// every 4th.
func (c *Connection) flush() {
	c.mu.Lock()
	c.tick++
	tick := c.tick
	c.recovery.EvictExpired(time.Now())

	var toSend []*Frame
	toSend = append(toSend, c.queues[PriorityHigh]...)
	c.queues[PriorityHigh] = nil
	if tick%2 == 0 {
		toSend = append(toSend, c.queues[PriorityMedium]...)
		c.queues[PriorityMedium] = nil
	}
	if tick%4 == 0 {
		toSend = append(toSend, c.queues[PriorityLow]...)
		c.queues[PriorityLow] = nil
	}

	var ackDatagram []byte
	if tick%4 == 0 && len(c.pendingACKs) > 0 {
		seqs := make([]uint32, 0, len(c.pendingACKs))
		for seq := range c.pendingACKs {
			seqs = append(seqs, seq)
		}
		c.pendingACKs = make(map[uint32]struct{})
		ackDatagram = EncodeACKList(FlagACK, CoalesceSequences(seqs))
	}

	batches := c.packBatches(toSend)
	c.mu.Unlock()

	if ackDatagram != nil {
		if err := c.send(ackDatagram); err != nil {
			c.log.Warnw("raknet: ack send failed", "err", err)
		}
	}
	for _, b := range batches {
		if err := c.send(b.Encode()); err != nil {
			c.log.Warnw("raknet: batch send failed", "err", err)
		}
	}
}

// packBatches greedily fills datagrams up to MTU, assigning a fresh
// sequence number to each and recording reliable ones in the recovery
// queue. Caller holds c.mu.
func (c *Connection) packBatches(frames []*Frame) []*FrameBatch {
	var batches []*FrameBatch
	var cur []*Frame
	curSize := 4 // batch header

	flushCur := func() {
		if len(cur) == 0 {
			return
		}
		seq := c.datagramSeq
		c.datagramSeq++
		batch := &FrameBatch{SequenceNumber: seq, Frames: cur}
		c.recovery.Put(seq, cur)
		batches = append(batches, batch)
		cur = nil
		curSize = 4
	}

	for _, f := range frames {
		sz := f.EncodedSize()
		if curSize+sz > c.MTU && len(cur) > 0 {
			flushCur()
		}
		cur = append(cur, f)
		curSize += sz
	}
	flushCur()
	return batches
}
