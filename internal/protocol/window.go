package protocol

import (
	"slices"
	"time"
)

// SequenceWindow tracks the datagram sequence numbers received from a peer. Every accepted
// sequence number is queued for an ACK and every gap below the highest sequence number is queued
// for a NACK until it arrives.
type SequenceWindow struct {
	Start   uint32
	Highest uint32

	received map[uint32]struct{}
	acks     []uint32
	nacks    map[uint32]struct{}
}

func CreateSequenceWindow() *SequenceWindow {
	return &SequenceWindow{
		Start:    0,
		Highest:  MAX_UINT24,
		received: make(map[uint32]struct{}, WINDOW_SIZE),
		acks:     make([]uint32, 0, MAX_RECEIPTS),
		nacks:    map[uint32]struct{}{},
	}
}

// Receives a datagram sequence number. Returns false if the datagram is a duplicate or falls
// outside the window, in which case it must not be processed.
func (w *SequenceWindow) Receive(seq uint32) bool {
	diff := Uint24Diff(seq, w.Start)
	if diff < 0 || diff >= int32(WINDOW_SIZE) {
		return false
	}

	if _, ok := w.received[seq]; ok {
		return false
	}

	w.received[seq] = struct{}{}
	w.acks = append(w.acks, seq)
	delete(w.nacks, seq)

	if Uint24Diff(seq, w.Highest) > 0 {
		for i := Uint24Add(w.Highest, 1); i != seq; i = Uint24Add(i, 1) {
			if _, ok := w.received[i]; !ok {
				w.nacks[i] = struct{}{}
			}
		}
		w.Highest = seq
	}

	// Gaps far behind the highest sequence number were NACKed long ago and the peer resends their
	// frames under new sequence numbers, so the window moves past them.
	for {
		_, ok := w.received[w.Start]
		if !ok && Uint24Diff(w.Highest, w.Start) < int32(WINDOW_SIZE/2) {
			break
		}
		delete(w.received, w.Start)
		delete(w.nacks, w.Start)
		w.Start = Uint24Add(w.Start, 1)
	}

	return true
}

// Returns the sequence numbers to acknowledge and clears them.
func (w *SequenceWindow) TakeAcks() []uint32 {
	if len(w.acks) == 0 {
		return nil
	}

	acks := slices.Clone(w.acks)
	w.acks = w.acks[:0]
	return acks
}

// Returns the missing sequence numbers to negatively acknowledge and clears them. A missing
// sequence number is reported once, retransmission timeouts on the sender's side cover the rest.
func (w *SequenceWindow) TakeNacks() []uint32 {
	if len(w.nacks) == 0 {
		return nil
	}

	nacks := make([]uint32, 0, len(w.nacks))
	for seq := range w.nacks {
		nacks = append(nacks, seq)
	}
	clear(w.nacks)

	slices.Sort(nacks)
	return nacks
}

// MessageWindow detects duplicate reliable frames by their reliable index.
type MessageWindow struct {
	Start   uint32
	Indexes map[uint32]struct{}
}

func CreateMessageWindow() *MessageWindow {
	return &MessageWindow{
		Start:   0,
		Indexes: map[uint32]struct{}{},
	}
}

// Returns whether Receive can judge the index. Indexes too far ahead are not tracked, a datagram
// carrying one must be left unacknowledged.
func (w *MessageWindow) Admits(index uint32) bool {
	return Uint24Diff(index, w.Start) < int32(WINDOW_SIZE)
}

// Receives a reliable index. Returns false if the index was received before or lies too far
// ahead to be tracked.
func (w *MessageWindow) Receive(index uint32) bool {
	diff := Uint24Diff(index, w.Start)
	if diff < 0 || diff >= int32(WINDOW_SIZE) {
		return false
	}

	if _, ok := w.Indexes[index]; ok {
		return false
	}

	w.Indexes[index] = struct{}{}

	for {
		if _, ok := w.Indexes[w.Start]; !ok {
			break
		}
		delete(w.Indexes, w.Start)
		w.Start = Uint24Add(w.Start, 1)
	}

	return true
}

// SplitWindow collects the fragments of one compound message until all of them have arrived.
type SplitWindow struct {
	Count     uint32
	Fragments map[uint32][]byte
	Created   time.Time

	// The first fragment received, whose index fields stand for the whole message.
	Head *Frame
}

func CreateSplitWindow(count uint32, now time.Time) *SplitWindow {
	return &SplitWindow{
		Count:     count,
		Fragments: make(map[uint32][]byte, count),
		Created:   now,
	}
}

// Receives a fragment and returns whether every fragment of the message is now present.
func (w *SplitWindow) Receive(f *Frame) bool {
	if w.Head == nil {
		w.Head = f
	}

	w.Fragments[f.SplitIndex] = f.Content
	return len(w.Fragments) == int(w.Count)
}

// Returns the fragments joined in fragment index order.
func (w *SplitWindow) Assemble() []byte {
	size := 0
	for _, fragment := range w.Fragments {
		size += len(fragment)
	}

	content := make([]byte, 0, size)
	for i := uint32(0); i < w.Count; i++ {
		content = append(content, w.Fragments[i]...)
	}

	return content
}
