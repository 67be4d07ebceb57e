package protocol

// The raknet protocol version spoken in the offline handshake.
const PROTOCOL_VERSION byte = 11

// MTU bounds. The MTU counts the IP and UDP headers, the datagram payload does not.
const (
	MAX_MTU_SIZE int = 1500
	MIN_MTU_SIZE int = 500

	// IPv4 header (20 bytes) and UDP header (8 bytes).
	UDP_HEADER_SIZE int = 20 + 8
)

// Header sizes used to budget datagrams.
const (
	// Flags (uint8), sequence number (uint24).
	DATAGRAM_HEADER_SIZE int = 1 + 3

	// Flags (uint8), content length in bits (uint16), reliable, sequence and order index (uint24
	// each), order channel (uint8). This is the worst case, see HeaderSize for the exact size.
	FRAME_BODY_SIZE int = 1 + 2 + 3 + 3 + 3 + 1

	// Fragment count (uint32), compound id (uint16), fragment index (uint32).
	FRAME_ADDITIONAL_SIZE int = 4 + 2 + 4
)

// Bits of the first byte of a datagram and of a frame.
const (
	// Set on every connected packet, receipts included.
	FLAG_DATAGRAM uint8 = 0x80
	FLAG_ACK      uint8 = 0x40
	FLAG_NACK     uint8 = 0x20

	// Set on every data datagram by convention. Peers ignore it.
	FLAG_NEEDS_B_AND_AS uint8 = 0x04

	// Frame flag marking a fragment of a larger message.
	FLAG_FRAGMENTED uint8 = 0x10
)

// Limits.
const (
	// Receive windows drop indexes this far or further ahead of the lowest missing index.
	WINDOW_SIZE uint32 = 2048

	// Records written into one ACK or NACK.
	MAX_RECEIPTS int = 250

	// Frames packed into one datagram.
	MAX_FRAME_COUNT int = 250

	// Default bound on the fragments of one message.
	MAX_FRAGMENT_COUNT uint32 = 250

	// Independent order channels, addressed by the order channel byte.
	MAX_ORDER_CHANNELS int = 32
)
