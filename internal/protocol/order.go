package protocol

// OrderWindow holds ordered frames of one order channel until every lower order index has been
// delivered.
type OrderWindow struct {
	Expected uint32
	Pending  map[uint32][]byte
}

func CreateOrderWindow() *OrderWindow {
	return &OrderWindow{
		Expected: 0,
		Pending:  map[uint32][]byte{},
	}
}

// Returns whether the order index is either behind the window or can be held until it is due.
func (w *OrderWindow) Admits(index uint32) bool {
	return Uint24Diff(index, w.Expected) < int32(WINDOW_SIZE)
}

// Receives the content of the frame with the given order index and returns every content that can
// now be delivered, in order. Contents behind the expected index are duplicates and dropped.
func (w *OrderWindow) Receive(index uint32, content []byte) [][]byte {
	diff := Uint24Diff(index, w.Expected)
	if diff < 0 || diff >= int32(WINDOW_SIZE) {
		return nil
	}

	if diff > 0 {
		w.Pending[index] = content
		return nil
	}

	ready := [][]byte{content}
	w.Expected = Uint24Add(w.Expected, 1)

	for {
		next, ok := w.Pending[w.Expected]
		if !ok {
			break
		}

		ready = append(ready, next)
		delete(w.Pending, w.Expected)
		w.Expected = Uint24Add(w.Expected, 1)
	}

	return ready
}

// SequenceChannel remembers the highest sequence index delivered on one order channel.
type SequenceChannel struct {
	Highest   uint32
	Delivered bool
}

// Returns whether a sequenced frame with the index is newer than every frame delivered so far
// and records it as delivered. Older and equal indexes are stale.
func (c *SequenceChannel) Accept(index uint32) bool {
	if c.Delivered && Uint24Diff(index, c.Highest) <= 0 {
		return false
	}

	c.Highest = index
	c.Delivered = true
	return true
}
