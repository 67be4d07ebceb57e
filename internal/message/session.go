package message

import (
	"fmt"
	"net"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// ConnectionRequest is the first message a client sends inside a frame, right after the offline
// handshake.
type ConnectionRequest struct {
	ClientGUID       int64
	RequestTimestamp int64

	// Security is not supported, peers always send false.
	Secure bool
}

func (pk *ConnectionRequest) ID() ID {
	return IDConnectionRequest
}

func (pk *ConnectionRequest) Read(buf *buffer.Buffer) (err error) {
	if pk.ClientGUID, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	if pk.RequestTimestamp, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	pk.Secure, err = buf.ReadBool()
	return
}

func (pk *ConnectionRequest) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteInt64(pk.ClientGUID, byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.WriteInt64(pk.RequestTimestamp, byteorder.BigEndian); err != nil {
		return
	}

	return buf.WriteBool(pk.Secure)
}

// ConnectionRequestAccepted answers a ConnectionRequest.
type ConnectionRequestAccepted struct {
	ClientAddress     net.UDPAddr
	SystemIndex       uint16
	RequestTimestamp  int64
	AcceptedTimestamp int64
}

func (pk *ConnectionRequestAccepted) ID() ID {
	return IDConnectionRequestAccepted
}

func (pk *ConnectionRequestAccepted) Read(buf *buffer.Buffer) (err error) {
	if err = buf.ReadAddr(&pk.ClientAddress); err != nil {
		return
	}

	if pk.SystemIndex, err = buf.ReadUint16(byteorder.BigEndian); err != nil {
		return
	}

	if err = readSystemAddresses(buf); err != nil {
		return
	}

	return readTimestamps(buf, &pk.RequestTimestamp, &pk.AcceptedTimestamp)
}

func (pk *ConnectionRequestAccepted) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteAddr(&pk.ClientAddress); err != nil {
		return
	}

	if err = buf.WriteUint16(pk.SystemIndex, byteorder.BigEndian); err != nil {
		return
	}

	if err = writeSystemAddresses(buf); err != nil {
		return
	}

	return writeTimestamps(buf, pk.RequestTimestamp, pk.AcceptedTimestamp)
}

// NewIncomingConnection completes the handshake. Every message after it belongs to the
// application.
type NewIncomingConnection struct {
	ServerAddress     net.UDPAddr
	RequestTimestamp  int64
	AcceptedTimestamp int64
}

func (pk *NewIncomingConnection) ID() ID {
	return IDNewIncomingConnection
}

func (pk *NewIncomingConnection) Read(buf *buffer.Buffer) (err error) {
	if err = buf.ReadAddr(&pk.ServerAddress); err != nil {
		return
	}

	if err = readSystemAddresses(buf); err != nil {
		return
	}

	return readTimestamps(buf, &pk.RequestTimestamp, &pk.AcceptedTimestamp)
}

func (pk *NewIncomingConnection) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteAddr(&pk.ServerAddress); err != nil {
		return
	}

	if err = writeSystemAddresses(buf); err != nil {
		return
	}

	return writeTimestamps(buf, pk.RequestTimestamp, pk.AcceptedTimestamp)
}

// ConnectedPing checks that the other side of a session is alive. Its timestamp comes back in
// the ConnectedPong, which gives the round trip time.
type ConnectedPing struct {
	ClientTimestamp int64
}

func (pk *ConnectedPing) ID() ID {
	return IDConnectedPing
}

func (pk *ConnectedPing) Read(buf *buffer.Buffer) (err error) {
	pk.ClientTimestamp, err = buf.ReadInt64(byteorder.BigEndian)
	return
}

func (pk *ConnectedPing) Write(buf *buffer.Buffer) (err error) {
	return buf.WriteInt64(pk.ClientTimestamp, byteorder.BigEndian)
}

// ConnectedPong echoes a ConnectedPing together with the time of the side answering it.
type ConnectedPong struct {
	ClientTimestamp int64
	ServerTimestamp int64
}

func (pk *ConnectedPong) ID() ID {
	return IDConnectedPong
}

func (pk *ConnectedPong) Read(buf *buffer.Buffer) (err error) {
	return readTimestamps(buf, &pk.ClientTimestamp, &pk.ServerTimestamp)
}

func (pk *ConnectedPong) Write(buf *buffer.Buffer) (err error) {
	return writeTimestamps(buf, pk.ClientTimestamp, pk.ServerTimestamp)
}

// DetectLostConnections asks the other side to prove it is alive. It is answered with a
// ConnectedPing.
type DetectLostConnections struct{}

func (pk *DetectLostConnections) ID() ID                               { return IDDetectLostConnections }
func (pk *DetectLostConnections) Read(buf *buffer.Buffer) (err error)  { return }
func (pk *DetectLostConnections) Write(buf *buffer.Buffer) (err error) { return }

// DisconnectNotification ends a session. Either side may send it.
type DisconnectNotification struct{}

func (pk *DisconnectNotification) ID() ID                               { return IDDisconnectNotification }
func (pk *DisconnectNotification) Read(buf *buffer.Buffer) (err error)  { return }
func (pk *DisconnectNotification) Write(buf *buffer.Buffer) (err error) { return }

// UserMessage is any connected message with an ID at or above IDUserPacketEnum. The payload is
// opaque to the protocol.
type UserMessage struct {
	MessageID ID
	Payload   []byte
}

func (pk *UserMessage) ID() ID {
	return pk.MessageID
}

// Reads the rest of the buffer as the payload. The payload is copied so that it outlives the
// buffer.
func (pk *UserMessage) Read(buf *buffer.Buffer) (err error) {
	pk.Payload = make([]byte, buf.Remaining())
	return buf.Read(pk.Payload)
}

func (pk *UserMessage) Write(buf *buffer.Buffer) (err error) {
	if !IsUser(pk.MessageID) {
		return fmt.Errorf("message id 0x%02x is reserved for the protocol", pk.MessageID)
	}
	return buf.Write(pk.Payload)
}

func readTimestamps(buf *buffer.Buffer, first, second *int64) (err error) {
	if *first, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	*second, err = buf.ReadInt64(byteorder.BigEndian)
	return
}

func writeTimestamps(buf *buffer.Buffer, first, second int64) (err error) {
	if err = buf.WriteInt64(first, byteorder.BigEndian); err != nil {
		return
	}

	return buf.WriteInt64(second, byteorder.BigEndian)
}
