package protocol

import (
	"fmt"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// Datagram is one UDP payload carrying frames. Datagrams are built, sent and dropped; only the
// sequence number and the reliable frames survive in the recovery window until acknowledged.
type Datagram struct {
	Sequence uint32
	Frames   []*Frame
}

// Writes the datagram header followed by every frame.
func (d *Datagram) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteUint8(FLAG_DATAGRAM | FLAG_NEEDS_B_AND_AS); err != nil {
		return
	}

	if err = buf.WriteUint24(d.Sequence, byteorder.LittleEndian); err != nil {
		return
	}

	for _, f := range d.Frames {
		if err = f.Write(buf); err != nil {
			return
		}
	}

	return nil
}

// Reads a datagram including its flag byte. Every frame is decoded before the function returns so
// that a malformed datagram is rejected as a whole.
func (d *Datagram) Read(buf *buffer.Buffer) (err error) {
	header, err := buf.ReadUint8()
	if err != nil {
		return
	}

	if header&FLAG_DATAGRAM == 0 {
		return ErrNotDatagram
	}

	if header&(FLAG_ACK|FLAG_NACK) != 0 {
		return ErrUnexpectedReceipt
	}

	if d.Sequence, err = buf.ReadUint24(byteorder.LittleEndian); err != nil {
		return
	}

	d.Frames = d.Frames[:0]

	for buf.Remaining() != 0 {
		if len(d.Frames) >= MAX_FRAME_COUNT {
			return ErrFrameCount
		}

		f := &Frame{}
		if err = f.Read(buf); err != nil {
			return fmt.Errorf("frame %d: %w", len(d.Frames), err)
		}

		d.Frames = append(d.Frames, f)
	}

	return nil
}
