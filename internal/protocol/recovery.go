package protocol

import (
	"slices"
	"time"
)

// Record is a sent datagram holding reliable frames that has not been acknowledged yet.
type Record struct {
	Sequence  uint32
	Frames    []*Frame
	Timestamp time.Time
	Retries   int
}

// RecoveryWindow keeps a record for every unacknowledged datagram that carried reliable frames,
// keyed by its datagram sequence number.
type RecoveryWindow struct {
	records map[uint32]*Record
}

func CreateRecoveryWindow() *RecoveryWindow {
	return &RecoveryWindow{
		records: map[uint32]*Record{},
	}
}

func (w *RecoveryWindow) Add(rec *Record) {
	w.records[rec.Sequence] = rec
}

// Removes and returns the record of an acknowledged sequence number.
func (w *RecoveryWindow) Acknowledge(seq uint32) (*Record, bool) {
	rec, ok := w.records[seq]
	if ok {
		delete(w.records, seq)
	}
	return rec, ok
}

// Removes and returns the record of a sequence number that is about to be sent again under a
// new sequence number.
func (w *RecoveryWindow) Retransmit(seq uint32) (*Record, bool) {
	return w.Acknowledge(seq)
}

// Returns every record sent at least timeout ago, oldest sequence number first.
func (w *RecoveryWindow) Expired(now time.Time, timeout time.Duration) []*Record {
	var expired []*Record
	for _, rec := range w.records {
		if now.Sub(rec.Timestamp) >= timeout {
			expired = append(expired, rec)
		}
	}

	slices.SortFunc(expired, func(a, b *Record) int {
		return int(Uint24Diff(a.Sequence, b.Sequence))
	})
	return expired
}

// Releases every record.
func (w *RecoveryWindow) Clear() {
	clear(w.records)
}
