package protocol

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
)

func TestReceiptCoalescesRanges(t *testing.T) {
	r := &Receipt{Flag: FLAG_ACK, Sequences: []uint32{5, 1, 2, 3, 9, 10}}

	buf := buffer.New(0)
	if err := r.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []byte{
		0xc0,
		0x00, 0x03,
		RangedRecord, 0x01, 0x00, 0x00, 0x03, 0x00, 0x00,
		SingleRecord, 0x05, 0x00, 0x00,
		RangedRecord, 0x09, 0x00, 0x00, 0x0a, 0x00, 0x00,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoded %x, want %x", buf.Bytes(), want)
	}

	got := &Receipt{}
	if err := got.Read(buffer.From(buf.Bytes())); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !got.Ack() {
		t.Error("decoded receipt is not an ACK")
	}

	if !slices.Equal(got.Sequences, []uint32{1, 2, 3, 5, 9, 10}) {
		t.Errorf("decoded %v", got.Sequences)
	}
}

func TestReceiptRangeAcrossWrap(t *testing.T) {
	data := []byte{0xa0, 0x00, 0x01, RangedRecord, 0xfe, 0xff, 0xff, 0x01, 0x00, 0x00}

	got := &Receipt{}
	if err := got.Read(buffer.From(data)); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got.Ack() {
		t.Error("decoded receipt is not a NACK")
	}

	if !slices.Equal(got.Sequences, []uint32{0xfffffe, 0xffffff, 0, 1}) {
		t.Errorf("decoded %v", got.Sequences)
	}
}

func TestReceiptRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{name: "unknown record type", data: []byte{0xc0, 0x00, 0x01, 0x07, 0x00, 0x00, 0x00}, err: ErrRecordType},
		{name: "huge range", data: []byte{0xc0, 0x00, 0x01, RangedRecord, 0x00, 0x00, 0x00, 0xff, 0xff, 0x00}, err: ErrRecordRange},
		{name: "truncated", data: []byte{0xc0, 0x00, 0x02, SingleRecord, 0x00, 0x00, 0x00}, err: buffer.ErrBufferUnderrun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := (&Receipt{}).Read(buffer.From(tt.data)); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}
