package protocol

import (
	"fmt"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// Frame is one reliability tagged unit inside a datagram. It carries either a whole message or
// one fragment of a message that did not fit into a single datagram. Only the index fields that
// the reliability requires are encoded.
type Frame struct {
	Reliability Reliability

	ReliableIndex uint32
	SequenceIndex uint32
	OrderIndex    uint32
	OrderChannel  uint8

	Split      bool
	SplitCount uint32
	SplitID    uint16
	SplitIndex uint32

	Content []byte
}

// Returns the size of the frame header for the reliability, with or without the fragment descriptor.
func HeaderSize(reliability Reliability, split bool) int {
	size := 1 + 2

	if reliability.Reliable() {
		size += 3
	}

	if reliability.Sequenced() {
		size += 3
	}

	if reliability.SequencedOrdered() {
		size += 3 + 1
	}

	if split {
		size += FRAME_ADDITIONAL_SIZE
	}

	return size
}

// Returns the number of bytes the frame occupies in a datagram.
func (f *Frame) Size() int {
	return HeaderSize(f.Reliability, f.Split) + len(f.Content)
}

// Writes the frame to the buffer and returns an error if the operation has failed.
func (f *Frame) Write(buf *buffer.Buffer) (err error) {
	if !f.Reliability.Valid() {
		return fmt.Errorf("invalid reliability %d", f.Reliability)
	}

	if len(f.Content) == 0 || len(f.Content) > 0xffff>>3 {
		return fmt.Errorf("frame content of %d bytes cannot be encoded", len(f.Content))
	}

	header := byte(f.Reliability) << 5
	if f.Split {
		header |= FLAG_FRAGMENTED
	}

	if err = buf.WriteUint8(header); err != nil {
		return
	}

	// The length is written in bits.
	if err = buf.WriteUint16(uint16(len(f.Content))<<3, byteorder.BigEndian); err != nil {
		return
	}

	if f.Reliability.Reliable() {
		if err = buf.WriteUint24(f.ReliableIndex, byteorder.LittleEndian); err != nil {
			return
		}
	}

	if f.Reliability.Sequenced() {
		if err = buf.WriteUint24(f.SequenceIndex, byteorder.LittleEndian); err != nil {
			return
		}
	}

	if f.Reliability.SequencedOrdered() {
		if err = buf.WriteUint24(f.OrderIndex, byteorder.LittleEndian); err != nil {
			return
		}

		if err = buf.WriteUint8(f.OrderChannel); err != nil {
			return
		}
	}

	if f.Split {
		if err = buf.WriteUint32(f.SplitCount, byteorder.BigEndian); err != nil {
			return
		}

		if err = buf.WriteUint16(f.SplitID, byteorder.BigEndian); err != nil {
			return
		}

		if err = buf.WriteUint32(f.SplitIndex, byteorder.BigEndian); err != nil {
			return
		}
	}

	return buf.Write(f.Content)
}

// Reads a frame from the buffer. A truncated content returns buffer.ErrBufferUnderrun while a frame
// that lacks a field its own header mandates, or carries values no peer can produce, returns an
// error wrapping ErrProtocolViolation. The content is copied out of the buffer.
func (f *Frame) Read(buf *buffer.Buffer) (err error) {
	header, err := buf.ReadUint8()
	if err != nil {
		return
	}

	f.Reliability = Reliability(header >> 5)
	f.Split = header&FLAG_FRAGMENTED != 0

	bits, err := buf.ReadUint16(byteorder.BigEndian)
	if err != nil {
		return violation("frame length", err)
	}

	length := (int(bits) + 7) >> 3
	if length == 0 {
		return fmt.Errorf("%w: frame with zero length", ErrProtocolViolation)
	}

	if f.Reliability.Reliable() {
		if f.ReliableIndex, err = buf.ReadUint24(byteorder.LittleEndian); err != nil {
			return violation("reliable index", err)
		}
	}

	if f.Reliability.Sequenced() {
		if f.SequenceIndex, err = buf.ReadUint24(byteorder.LittleEndian); err != nil {
			return violation("sequence index", err)
		}
	}

	if f.Reliability.SequencedOrdered() {
		if f.OrderIndex, err = buf.ReadUint24(byteorder.LittleEndian); err != nil {
			return violation("order index", err)
		}

		if f.OrderChannel, err = buf.ReadUint8(); err != nil {
			return violation("order channel", err)
		}

		if int(f.OrderChannel) >= MAX_ORDER_CHANNELS {
			return fmt.Errorf("%w: order channel %d", ErrProtocolViolation, f.OrderChannel)
		}
	}

	if f.Split {
		if f.SplitCount, err = buf.ReadUint32(byteorder.BigEndian); err != nil {
			return violation("fragment count", err)
		}

		if f.SplitID, err = buf.ReadUint16(byteorder.BigEndian); err != nil {
			return violation("compound id", err)
		}

		if f.SplitIndex, err = buf.ReadUint32(byteorder.BigEndian); err != nil {
			return violation("fragment index", err)
		}

		if f.SplitCount == 0 || f.SplitIndex >= f.SplitCount {
			return fmt.Errorf("%w: fragment %d of %d", ErrProtocolViolation, f.SplitIndex, f.SplitCount)
		}
	} else {
		f.SplitCount, f.SplitID, f.SplitIndex = 0, 0, 0
	}

	f.Content = make([]byte, length)
	return buf.Read(f.Content)
}

func violation(field string, err error) error {
	return fmt.Errorf("%w: missing %s: %v", ErrProtocolViolation, field, err)
}
