package protocol

import (
	"slices"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// RecordType specifies the type of record the acknowledgement receipt contains. Record type
// can be either single i.e. one sequence number or ranged i.e. the start and the end of the range.
// Example for ranged record could be: start (12 uint24) - end (18 uint24) containing 7 sequence numbers.
type RecordType = uint8

const (
	SingleRecord RecordType = 0x01
	RangedRecord RecordType = 0x00
)

// Receipt is an ACK or NACK datagram listing datagram sequence numbers.
type Receipt struct {
	// Either FLAG_ACK or FLAG_NACK.
	Flag      uint8
	Sequences []uint32
}

// Returns whether the receipt is an ACK.
func (r *Receipt) Ack() bool {
	return r.Flag&FLAG_ACK != 0
}

// Writes the receipt, coalescing consecutive sequence numbers into ranged records. The sequences
// are sorted in place.
func (r *Receipt) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteUint8(FLAG_DATAGRAM | r.Flag); err != nil {
		return
	}

	records := r.records()
	if err = buf.WriteUint16(uint16(len(records)), byteorder.BigEndian); err != nil {
		return
	}

	for _, rec := range records {
		if rec[0] == rec[1] {
			if err = buf.WriteUint8(SingleRecord); err != nil {
				return
			}

			if err = buf.WriteUint24(rec[0], byteorder.LittleEndian); err != nil {
				return
			}
			continue
		}

		if err = buf.WriteUint8(RangedRecord); err != nil {
			return
		}

		if err = buf.WriteUint24(rec[0], byteorder.LittleEndian); err != nil {
			return
		}

		if err = buf.WriteUint24(rec[1], byteorder.LittleEndian); err != nil {
			return
		}
	}

	return nil
}

// Groups the sorted sequence numbers into inclusive [start, end] pairs.
func (r *Receipt) records() [][2]uint32 {
	slices.Sort(r.Sequences)
	r.Sequences = slices.Compact(r.Sequences)

	var records [][2]uint32
	for _, seq := range r.Sequences {
		if n := len(records); n > 0 && Uint24Add(records[n-1][1], 1) == seq {
			records[n-1][1] = seq
			continue
		}
		records = append(records, [2]uint32{seq, seq})
	}

	return records
}

// Reads a receipt including its flag byte. Ranges are inclusive on both ends.
func (r *Receipt) Read(buf *buffer.Buffer) (err error) {
	header, err := buf.ReadUint8()
	if err != nil {
		return
	}

	if header&FLAG_DATAGRAM == 0 {
		return ErrNotDatagram
	}

	r.Flag = header & (FLAG_ACK | FLAG_NACK)
	r.Sequences = r.Sequences[:0]

	count, err := buf.ReadUint16(byteorder.BigEndian)
	if err != nil {
		return
	}

	for i := 0; i < int(count); i++ {
		recordType, err := buf.ReadUint8()
		if err != nil {
			return err
		}

		switch recordType {
		case RangedRecord:
			start, err := buf.ReadUint24(byteorder.LittleEndian)
			if err != nil {
				return err
			}

			end, err := buf.ReadUint24(byteorder.LittleEndian)
			if err != nil {
				return err
			}

			span := Uint24Diff(end, start)
			if span < 0 || uint32(span) >= WINDOW_SIZE {
				return ErrRecordRange
			}

			for seq := start; ; seq = Uint24Add(seq, 1) {
				r.Sequences = append(r.Sequences, seq)
				if seq == end {
					break
				}
			}
		case SingleRecord:
			seq, err := buf.ReadUint24(byteorder.LittleEndian)
			if err != nil {
				return err
			}

			r.Sequences = append(r.Sequences, seq)
		default:
			return ErrRecordType
		}
	}

	return nil
}
