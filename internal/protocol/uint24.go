package protocol

// Every datagram sequence number and every frame index is a 24-bit counter that wraps.
const MAX_UINT24 uint32 = 1<<24 - 1

// Returns a + n wrapped to 24 bits.
func Uint24Add(a, n uint32) uint32 {
	return (a + n) & MAX_UINT24
}

// Returns the signed distance from b to a on the 24-bit ring, in [-2^23, 2^23).
func Uint24Diff(a, b uint32) int32 {
	d := (a - b) & MAX_UINT24
	if d >= 1<<23 {
		return int32(d) - 1<<24
	}
	return int32(d)
}
