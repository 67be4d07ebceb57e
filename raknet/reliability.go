package raknet

import (
	"fmt"
	"slices"
	"time"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/message"
	"github.com/DaylightNebula/RakNet/internal/protocol"
)

// Reliability is the delivery guarantee a message is sent with.
type Reliability = protocol.Reliability

const (
	Unreliable                    = protocol.Unreliable
	UnreliableSequenced           = protocol.UnreliableSequenced
	Reliable                      = protocol.Reliable
	ReliableOrdered               = protocol.ReliableOrdered
	ReliableSequenced             = protocol.ReliableSequenced
	UnreliableWithAckReceipt      = protocol.UnreliableWithAckReceipt
	ReliableWithAckReceipt        = protocol.ReliableWithAckReceipt
	ReliableOrderedWithAckReceipt = protocol.ReliableOrderedWithAckReceipt
)

// Returns the number of bytes the frames of one datagram may occupy.
func (c *Connection) datagramCapacity() int {
	return c.mtu - protocol.UDP_HEADER_SIZE - protocol.DATAGRAM_HEADER_SIZE
}

// Returns the reliability the content is framed with, the number of frames and the content size
// of each frame.
func (c *Connection) fragmentation(size int, reliability Reliability) (Reliability, int, int) {
	capacity := c.datagramCapacity()
	if size <= capacity-protocol.HeaderSize(reliability, false) {
		return reliability, 1, size
	}

	reliability = splitReliability(reliability)
	per := capacity - protocol.HeaderSize(reliability, true)
	return reliability, (size + per - 1) / per, per
}

// Fragments are always sent reliably.
func splitReliability(r Reliability) Reliability {
	switch r {
	case Unreliable:
		return Reliable
	case UnreliableSequenced:
		return ReliableSequenced
	case UnreliableWithAckReceipt:
		return ReliableWithAckReceipt
	default:
		return r
	}
}

// Splits the content into frames and queues them for the next flush. Order and sequence indexes
// are allocated once per message, reliable indexes once per frame.
func (c *Connection) enqueueFrames(content []byte, reliability Reliability, channel uint8) {
	reliability, count, size := c.fragmentation(len(content), reliability)

	var orderIndex, sequenceIndex uint32

	switch {
	case reliability.Sequenced():
		orderIndex = c.orderIndexes[channel]
		sequenceIndex = c.sequenceIndexes[channel]
		c.sequenceIndexes[channel] = protocol.Uint24Add(sequenceIndex, 1)
	case reliability.Ordered():
		orderIndex = c.orderIndexes[channel]
		c.orderIndexes[channel] = protocol.Uint24Add(orderIndex, 1)
	}

	splitID := c.splitID
	if count > 1 {
		c.splitID++
	}

	for i := 0; i < count; i++ {
		f := &protocol.Frame{
			Reliability:   reliability,
			SequenceIndex: sequenceIndex,
			OrderIndex:    orderIndex,
			OrderChannel:  channel,
			Content:       content[i*size : min((i+1)*size, len(content))],
		}

		if reliability.Reliable() {
			f.ReliableIndex = c.reliableIndex
			c.reliableIndex = protocol.Uint24Add(c.reliableIndex, 1)
		}

		if count > 1 {
			f.Split = true
			f.SplitCount = uint32(count)
			f.SplitID = splitID
			f.SplitIndex = uint32(i)
		}

		c.pending = append(c.pending, f)
	}
}

// Moves the messages queued by Send into the pending frames.
func (c *Connection) drainQueue() {
	c.queueMu.Lock()
	queue := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	for _, o := range queue {
		c.enqueueFrames(o.content, o.reliability, o.channel)
	}
}

// Sends queued messages, pending frames and receipts.
func (c *Connection) flush(now time.Time) {
	if c.state >= StateDisconnecting {
		return
	}

	c.drainQueue()
	c.flushFrames(now)
	c.flushReceipts()
}

// Packs the pending frames greedily into as few datagrams as the MTU allows and records every
// datagram carrying reliable frames for retransmission.
func (c *Connection) flushFrames(now time.Time) {
	if len(c.pending) == 0 {
		return
	}

	limit := c.mtu - protocol.UDP_HEADER_SIZE
	size := protocol.DATAGRAM_HEADER_SIZE
	var frames []*protocol.Frame

	for _, f := range c.pending {
		if len(frames) > 0 && (size+f.Size() > limit || len(frames) == protocol.MAX_FRAME_COUNT) {
			c.transmit(frames, now)
			frames, size = nil, protocol.DATAGRAM_HEADER_SIZE
		}

		frames = append(frames, f)
		size += f.Size()
	}

	c.transmit(frames, now)

	clear(c.pending)
	c.pending = c.pending[:0]
}

// Sends the frames as a new datagram and keeps a record of its reliable frames.
func (c *Connection) transmit(frames []*protocol.Frame, now time.Time) {
	seq := c.writeDatagram(frames)

	var reliable []*protocol.Frame
	for _, f := range frames {
		if f.Reliability.Reliable() {
			reliable = append(reliable, f)
		}
	}

	if len(reliable) > 0 {
		c.recoveryWindow.Add(&protocol.Record{
			Sequence:  seq,
			Frames:    reliable,
			Timestamp: now,
		})
	}
}

// Sends the frames of a record again under a new sequence number.
func (c *Connection) resend(rec *protocol.Record, now time.Time) {
	rec.Retries++
	rec.Sequence = c.writeDatagram(rec.Frames)
	rec.Timestamp = now

	c.recoveryWindow.Add(rec)
	c.listener.metrics.Retransmits.Inc()
}

// Writes a datagram with the next sequence number and returns that sequence number.
func (c *Connection) writeDatagram(frames []*protocol.Frame) uint32 {
	seq := c.sequenceNumber
	c.sequenceNumber = protocol.Uint24Add(seq, 1)

	dg := protocol.Datagram{Sequence: seq, Frames: frames}

	c.buffer.Reset()
	if err := dg.Write(c.buffer); err != nil {
		logger.Error("failed to encode datagram", logger.Args("addr", c.peerAddr.String(), "err", err))
		return seq
	}

	c.listener.write(c.peerAddr, c.buffer.Bytes())
	return seq
}

// Sends the ACKs and NACKs collected since the last flush.
func (c *Connection) flushReceipts() {
	acks := c.sequenceWindow.TakeAcks()
	slices.Sort(acks)

	c.writeReceipts(protocol.FLAG_ACK, acks)
	c.writeReceipts(protocol.FLAG_NACK, c.sequenceWindow.TakeNacks())
}

// Writes sorted sequence numbers as receipts. Every receipt fits the MTU even if none of its
// sequence numbers are consecutive.
func (c *Connection) writeReceipts(flag uint8, sequences []uint32) {
	per := min(protocol.MAX_RECEIPTS, (c.mtu-protocol.UDP_HEADER_SIZE-3)/7)

	for len(sequences) > 0 {
		n := min(per, len(sequences))
		receipt := protocol.Receipt{Flag: flag, Sequences: sequences[:n]}
		sequences = sequences[n:]

		c.buffer.Reset()
		if err := receipt.Write(c.buffer); err != nil {
			logger.Error("failed to encode receipt", logger.Args("addr", c.peerAddr.String(), "err", err))
			return
		}

		c.listener.write(c.peerAddr, c.buffer.Bytes())
	}
}

// Handles a datagram, ACK or NACK received from the peer. An error wrapping
// protocol.ErrProtocolViolation means the connection must be closed, any other error only
// discards the packet.
func (c *Connection) handleDatagram(b []byte, now time.Time) error {
	c.lastActivity = now

	buf := buffer.From(b)
	if b[0]&(protocol.FLAG_ACK|protocol.FLAG_NACK) != 0 {
		return c.handleReceipt(buf, now)
	}

	dg := protocol.Datagram{}
	if err := dg.Read(buf); err != nil {
		return err
	}

	if !c.admits(dg.Frames) {
		c.listener.metrics.Dropped.WithLabelValues("window").Inc()
		return nil
	}

	if !c.sequenceWindow.Receive(dg.Sequence) {
		c.listener.metrics.Dropped.WithLabelValues("duplicate").Inc()
		return nil
	}

	for _, f := range dg.Frames {
		if err := c.receiveFrame(f, now); err != nil {
			return err
		}

		if c.state >= StateDisconnecting {
			return nil
		}
	}

	return nil
}

// Returns whether the receive windows can take every frame of a datagram. A datagram that does not
// fit is dropped before it is acknowledged, so the peer sends its frames again later.
func (c *Connection) admits(frames []*protocol.Frame) bool {
	for _, f := range frames {
		if f.Reliability.Reliable() && !c.messageWindow.Admits(f.ReliableIndex) {
			return false
		}

		if f.Reliability.Ordered() && !c.orderWindow(f.OrderChannel).Admits(f.OrderIndex) {
			return false
		}
	}
	return true
}

// Removes acknowledged records and resends the ones the peer reported missing.
func (c *Connection) handleReceipt(buf *buffer.Buffer, now time.Time) error {
	receipt := protocol.Receipt{}
	if err := receipt.Read(buf); err != nil {
		return err
	}

	metrics := c.listener.metrics

	if receipt.Ack() {
		metrics.AcksReceived.Add(float64(len(receipt.Sequences)))

		for _, seq := range receipt.Sequences {
			rec, ok := c.recoveryWindow.Acknowledge(seq)
			if ok && rec.Retries == 0 {
				c.sample(now.Sub(rec.Timestamp))
			}
		}
		return nil
	}

	metrics.NacksReceived.Add(float64(len(receipt.Sequences)))

	for _, seq := range receipt.Sequences {
		if rec, ok := c.recoveryWindow.Retransmit(seq); ok {
			c.resend(rec, now)
		}
	}
	return nil
}

// Runs a frame through duplicate detection, reassembly, sequencing and ordering and delivers
// whatever became deliverable.
func (c *Connection) receiveFrame(f *protocol.Frame, now time.Time) error {
	if f.Reliability.Reliable() && !c.messageWindow.Receive(f.ReliableIndex) {
		c.listener.metrics.Dropped.WithLabelValues("duplicate").Inc()
		return nil
	}

	if f.Split {
		whole, err := c.reassemble(f, now)
		if err != nil || whole == nil {
			return err
		}
		f = whole
	}

	switch {
	case f.Reliability.Sequenced():
		if !c.sequenceChannels[f.OrderChannel].Accept(f.SequenceIndex) {
			c.listener.metrics.Dropped.WithLabelValues("stale").Inc()
			return nil
		}
	case f.Reliability.Ordered():
		for _, content := range c.orderWindow(f.OrderChannel).Receive(f.OrderIndex, f.Content) {
			c.deliver(content, now)

			if c.state >= StateDisconnecting {
				return nil
			}
		}
		return nil
	}

	c.deliver(f.Content, now)
	return nil
}

// Handles a complete message. Undecodable messages are dropped without affecting the frames that
// follow them.
func (c *Connection) deliver(content []byte, now time.Time) {
	if err := c.handleMessage(content, now); err != nil {
		c.listener.drop(c.peerAddr, err)
	}
}

func (c *Connection) orderWindow(channel uint8) *protocol.OrderWindow {
	if c.orderWindows[channel] == nil {
		c.orderWindows[channel] = protocol.CreateOrderWindow()
	}
	return c.orderWindows[channel]
}

// Adds a fragment to its split window. Returns the reassembled frame once every fragment has
// arrived, nil before that.
func (c *Connection) reassemble(f *protocol.Frame, now time.Time) (*protocol.Frame, error) {
	if limit := c.listener.config.MaxFragments; f.SplitCount > limit {
		return nil, fmt.Errorf("%w: %d fragments exceed the limit of %d", protocol.ErrProtocolViolation, f.SplitCount, limit)
	}

	w, ok := c.splitWindows[f.SplitID]
	if !ok {
		w = protocol.CreateSplitWindow(f.SplitCount, now)
		c.splitWindows[f.SplitID] = w
	} else if w.Count != f.SplitCount {
		return nil, fmt.Errorf("%w: compound %d changed its fragment count from %d to %d", protocol.ErrProtocolViolation, f.SplitID, w.Count, f.SplitCount)
	}

	if !w.Receive(f) {
		return nil, nil
	}

	delete(c.splitWindows, f.SplitID)

	whole := *w.Head
	whole.Split = false
	whole.SplitCount, whole.SplitID, whole.SplitIndex = 0, 0, 0
	whole.Content = w.Assemble()
	return &whole, nil
}

// Adds a round trip time sample to the smoothed estimate.
func (c *Connection) sample(rtt time.Duration) {
	if c.srtt == 0 {
		c.srtt = rtt
		return
	}
	c.srtt = (7*c.srtt + rtt) / 8
}

// Returns the retransmission timeout derived from the smoothed round trip time.
func (c *Connection) rto() time.Duration {
	cfg := c.listener.config
	return min(max(2*c.srtt+cfg.TickInterval, cfg.RetransmitTimeout), cfg.MaxRetransmitTimeout)
}

// Runs once per listener tick. Closes a silent or unresponsive peer, pings a connected one,
// retransmits unacknowledged datagrams, flushes and evicts abandoned fragments.
func (c *Connection) update(now time.Time) {
	if c.state >= StateDisconnecting {
		return
	}

	cfg := c.listener.config

	if now.Sub(c.lastActivity) >= cfg.Timeout {
		logger.Debug("connection timed out", logger.Args("addr", c.peerAddr.String(), "idle", now.Sub(c.lastActivity).String()))
		c.close(ReasonTimeout, now)
		return
	}

	if c.state == StateConnected && now.Sub(c.lastPing) >= cfg.PingInterval {
		c.lastPing = now
		if err := c.sendMessage(&message.ConnectedPing{ClientTimestamp: c.listener.timestamp(now)}, Unreliable); err != nil {
			logger.Error("failed to encode connected ping", logger.Args("addr", c.peerAddr.String(), "err", err))
		}
	}

	for _, rec := range c.recoveryWindow.Expired(now, c.rto()) {
		if rec.Retries >= cfg.MaxRetries {
			logger.Warn("peer is unresponsive", logger.Args("addr", c.peerAddr.String(), "sequence", rec.Sequence, "err", ErrPathUnresponsive))
			c.close(ReasonTimeout, now)
			return
		}

		c.recoveryWindow.Retransmit(rec.Sequence)
		c.resend(rec, now)
	}

	c.flush(now)

	for id, w := range c.splitWindows {
		if now.Sub(w.Created) >= cfg.ReassemblyTimeout {
			delete(c.splitWindows, id)
			c.listener.metrics.Dropped.WithLabelValues("reassembly timeout").Inc()
		}
	}
}
