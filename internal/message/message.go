package message

import "github.com/DaylightNebula/RakNet/internal/binary/buffer"

// ID represents a raknet message ID. It is the first byte of every message, connected or not,
// and selects the layout of the rest of the message.
type ID = uint8

const (
	IDConnectedPing                  ID = 0x00
	IDUnconnectedPing                ID = 0x01
	IDUnconnectedPingOpenConnections ID = 0x02
	IDConnectedPong                  ID = 0x03
	IDDetectLostConnections          ID = 0x04
	IDOpenConnectionRequest1         ID = 0x05
	IDOpenConnectionReply1           ID = 0x06
	IDOpenConnectionRequest2         ID = 0x07
	IDOpenConnectionReply2           ID = 0x08
	IDConnectionRequest              ID = 0x09
	IDConnectionRequestAccepted      ID = 0x10
	IDNewIncomingConnection          ID = 0x13
	IDNoFreeIncomingConnections      ID = 0x14
	IDDisconnectNotification         ID = 0x15
	IDUnconnectedPong                ID = 0x1c
	IDIncompatibleProtocolVersion    ID = 0x19

	// Every ID from here on belongs to the application and is delivered as a UserMessage.
	IDUserPacketEnum ID = 0x86
	IDGamePacket     ID = 0xfe
)

// Message represents a raknet message that may be either connected or unconnected depending upon
// the connection status. Read and Write handle the body only, the ID is consumed by the dispatcher
// and written by Marshal.
type Message interface {
	ID() ID
	Read(buf *buffer.Buffer) (err error)
	Write(buf *buffer.Buffer) (err error)
}

// Returns whether the ID belongs to an application defined message.
func IsUser(id ID) bool {
	return id >= IDUserPacketEnum
}

// Returns whether the ID belongs to a message that is only exchanged before a session exists.
func IsOffline(id ID) bool {
	switch id {
	case IDUnconnectedPing, IDUnconnectedPingOpenConnections, IDUnconnectedPong,
		IDOpenConnectionRequest1, IDOpenConnectionReply1,
		IDOpenConnectionRequest2, IDOpenConnectionReply2,
		IDIncompatibleProtocolVersion, IDNoFreeIncomingConnections:
		return true
	default:
		return false
	}
}

// Encodes the ID and the body of the message into a fresh byte slice.
func Marshal(msg Message) ([]byte, error) {
	buf := buffer.New(0)
	if err := buf.WriteUint8(msg.ID()); err != nil {
		return nil, err
	}

	if err := msg.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
