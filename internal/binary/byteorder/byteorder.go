// Package byteorder selects the order in which multi-byte integers are laid out on the wire.
package byteorder

// ByteOrder is the order of bytes used to encode a multi-byte integer. RakNet mixes both: every
// header integer is big endian except the 24-bit counters, which are little endian.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// Returns the name of the byte order.
func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "LittleEndian"
	}
	return "BigEndian"
}

// Puts the lowest n bytes of v into b using the byte order.
func (o ByteOrder) Put(b []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		shift := uint(8 * i)
		if o == BigEndian {
			b[n-1-i] = byte(v >> shift)
		} else {
			b[i] = byte(v >> shift)
		}
	}
}

// Returns the integer stored in the first n bytes of b using the byte order.
func (o ByteOrder) Get(b []byte, n int) (v uint64) {
	for i := 0; i < n; i++ {
		shift := uint(8 * i)
		if o == BigEndian {
			v |= uint64(b[n-1-i]) << shift
		} else {
			v |= uint64(b[i]) << shift
		}
	}
	return
}
