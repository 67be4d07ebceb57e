// Package buffer implements the cursor based byte buffer that every RakNet message and datagram
// is encoded to and decoded from.
package buffer

import (
	"errors"

	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// This error is returned when fewer bytes remain in the buffer than a field requires.
var ErrBufferUnderrun = errors.New("buffer underrun: not enough bytes remaining")

// This error is returned when a write would grow the buffer past its limit.
var ErrBufferOverflow = errors.New("buffer overflow: write exceeds the buffer limit")

// This error is returned when a field was fully read but its value is not allowed, such as a
// magic that does not match or an unknown address version.
var ErrMalformedMessage = errors.New("malformed message")

// Buffer is a growable byte slice with a read cursor. Writes always append to the end of the
// buffer while reads consume from the cursor, so a buffer can be written once and read once
// without copying.
type Buffer struct {
	data  []byte
	off   int
	limit int
}

// Creates and returns an empty buffer that never grows past limit bytes. A limit of 0 or less
// means the buffer is unbounded.
func New(limit int) *Buffer {
	capacity := limit
	if capacity <= 0 {
		capacity = 64
	}

	return &Buffer{
		data:  make([]byte, 0, capacity),
		limit: limit,
	}
}

// Creates and returns a buffer that reads from b. The slice is not copied.
func From(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Returns every byte written to the buffer, including the bytes already read.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Returns the number of bytes written to the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Returns the number of bytes that remain to be read.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.off
}

// Empties the buffer and rewinds the read cursor while keeping the allocated memory.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// Advances the read cursor by n bytes without returning them.
func (b *Buffer) Shift(n int) error {
	if n < 0 || b.Remaining() < n {
		return ErrBufferUnderrun
	}

	b.off += n
	return nil
}

// Returns the next n unread bytes and advances the cursor. The returned slice aliases the
// buffer's memory.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, ErrBufferUnderrun
	}

	p := b.data[b.off : b.off+n]
	b.off += n
	return p, nil
}

// Fills p with the next len(p) bytes.
func (b *Buffer) Read(p []byte) error {
	src, err := b.Next(len(p))
	if err != nil {
		return err
	}

	copy(p, src)
	return nil
}

// Appends p to the buffer.
func (b *Buffer) Write(p []byte) error {
	if b.limit > 0 && len(b.data)+len(p) > b.limit {
		return ErrBufferOverflow
	}

	b.data = append(b.data, p...)
	return nil
}

func (b *Buffer) grow(n int) ([]byte, error) {
	if b.limit > 0 && len(b.data)+n > b.limit {
		return nil, ErrBufferOverflow
	}

	start := len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return b.data[start:], nil
}

func (b *Buffer) readUint(n int, order byteorder.ByteOrder) (uint64, error) {
	p, err := b.Next(n)
	if err != nil {
		return 0, err
	}
	return order.Get(p, n), nil
}

func (b *Buffer) writeUint(v uint64, n int, order byteorder.ByteOrder) error {
	p, err := b.grow(n)
	if err != nil {
		return err
	}

	order.Put(p, v, n)
	return nil
}

// Reads an unsigned 8-bit integer.
func (b *Buffer) ReadUint8() (uint8, error) {
	if b.Remaining() < 1 {
		return 0, ErrBufferUnderrun
	}

	v := b.data[b.off]
	b.off++
	return v, nil
}

// Writes an unsigned 8-bit integer.
func (b *Buffer) WriteUint8(v uint8) error {
	if b.limit > 0 && len(b.data)+1 > b.limit {
		return ErrBufferOverflow
	}

	b.data = append(b.data, v)
	return nil
}

// Reads a boolean encoded as a single byte. Any non-zero byte is true.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadUint8()
	return v != 0, err
}

// Writes a boolean as a single byte.
func (b *Buffer) WriteBool(v bool) error {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

func (b *Buffer) ReadUint16(order byteorder.ByteOrder) (uint16, error) {
	v, err := b.readUint(2, order)
	return uint16(v), err
}

func (b *Buffer) WriteUint16(v uint16, order byteorder.ByteOrder) error {
	return b.writeUint(uint64(v), 2, order)
}

// Reads an unsigned 24-bit integer into the low bits of a uint32.
func (b *Buffer) ReadUint24(order byteorder.ByteOrder) (uint32, error) {
	v, err := b.readUint(3, order)
	return uint32(v), err
}

// Writes the low 24 bits of v.
func (b *Buffer) WriteUint24(v uint32, order byteorder.ByteOrder) error {
	return b.writeUint(uint64(v&0xffffff), 3, order)
}

func (b *Buffer) ReadUint32(order byteorder.ByteOrder) (uint32, error) {
	v, err := b.readUint(4, order)
	return uint32(v), err
}

func (b *Buffer) WriteUint32(v uint32, order byteorder.ByteOrder) error {
	return b.writeUint(uint64(v), 4, order)
}

func (b *Buffer) ReadInt64(order byteorder.ByteOrder) (int64, error) {
	v, err := b.readUint(8, order)
	return int64(v), err
}

func (b *Buffer) WriteInt64(v int64, order byteorder.ByteOrder) error {
	return b.writeUint(uint64(v), 8, order)
}
