package message

import (
	"fmt"
	"net"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// ID, magic and protocol version. Everything after them is padding.
const openConnectionRequest1Size = 1 + 16 + 1

// OpenConnectionRequest1 probes the path MTU. The client pads the request with zeros up to the
// size it wants to try, so the size the request arrived with is the MTU.
type OpenConnectionRequest1 struct {
	Protocol byte

	// Size of the whole message, ID and padding included, without the IP and UDP headers.
	MTU int
}

func (pk *OpenConnectionRequest1) ID() ID {
	return IDOpenConnectionRequest1
}

func (pk *OpenConnectionRequest1) Read(buf *buffer.Buffer) (err error) {
	pk.MTU = 1 + buf.Remaining()

	if err = buf.ReadMagic(); err != nil {
		return
	}

	if pk.Protocol, err = buf.ReadUint8(); err != nil {
		return
	}

	return buf.Shift(buf.Remaining())
}

func (pk *OpenConnectionRequest1) Write(buf *buffer.Buffer) (err error) {
	if pk.MTU < openConnectionRequest1Size {
		return fmt.Errorf("mtu %d is smaller than the request itself", pk.MTU)
	}

	if err = buf.WriteMagic(); err != nil {
		return
	}

	if err = buf.WriteUint8(pk.Protocol); err != nil {
		return
	}

	return buf.Write(make([]byte, pk.MTU-openConnectionRequest1Size))
}

// OpenConnectionReply1 tells the client which MTU the server settled on for the probe.
type OpenConnectionReply1 struct {
	ServerGUID int64
	Secure     bool
	MTU        uint16
}

func (pk *OpenConnectionReply1) ID() ID {
	return IDOpenConnectionReply1
}

func (pk *OpenConnectionReply1) Read(buf *buffer.Buffer) (err error) {
	if err = buf.ReadMagic(); err != nil {
		return
	}

	if pk.ServerGUID, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	if pk.Secure, err = buf.ReadBool(); err != nil {
		return
	}

	pk.MTU, err = buf.ReadUint16(byteorder.BigEndian)
	return
}

func (pk *OpenConnectionReply1) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteMagic(); err != nil {
		return
	}

	if err = buf.WriteInt64(pk.ServerGUID, byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.WriteBool(pk.Secure); err != nil {
		return
	}

	return buf.WriteUint16(pk.MTU, byteorder.BigEndian)
}

// OpenConnectionRequest2 commits the client to an MTU. The server creates the session when it
// receives this request.
type OpenConnectionRequest2 struct {
	// The server address as the client sees it.
	ServerAddress net.UDPAddr
	MTU           uint16
	ClientGUID    int64
}

func (pk *OpenConnectionRequest2) ID() ID {
	return IDOpenConnectionRequest2
}

func (pk *OpenConnectionRequest2) Read(buf *buffer.Buffer) (err error) {
	if err = buf.ReadMagic(); err != nil {
		return
	}

	if err = buf.ReadAddr(&pk.ServerAddress); err != nil {
		return
	}

	if pk.MTU, err = buf.ReadUint16(byteorder.BigEndian); err != nil {
		return
	}

	pk.ClientGUID, err = buf.ReadInt64(byteorder.BigEndian)
	return
}

func (pk *OpenConnectionRequest2) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteMagic(); err != nil {
		return
	}

	if err = buf.WriteAddr(&pk.ServerAddress); err != nil {
		return
	}

	if err = buf.WriteUint16(pk.MTU, byteorder.BigEndian); err != nil {
		return
	}

	return buf.WriteInt64(pk.ClientGUID, byteorder.BigEndian)
}

// OpenConnectionReply2 ends the offline handshake with the MTU the session will use and the
// client address as the server sees it.
type OpenConnectionReply2 struct {
	ServerGUID    int64
	ClientAddress net.UDPAddr
	MTU           uint16
	Secure        bool
}

func (pk *OpenConnectionReply2) ID() ID {
	return IDOpenConnectionReply2
}

func (pk *OpenConnectionReply2) Read(buf *buffer.Buffer) (err error) {
	if err = buf.ReadMagic(); err != nil {
		return
	}

	if pk.ServerGUID, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.ReadAddr(&pk.ClientAddress); err != nil {
		return
	}

	if pk.MTU, err = buf.ReadUint16(byteorder.BigEndian); err != nil {
		return
	}

	pk.Secure, err = buf.ReadBool()
	return
}

func (pk *OpenConnectionReply2) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteMagic(); err != nil {
		return
	}

	if err = buf.WriteInt64(pk.ServerGUID, byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.WriteAddr(&pk.ClientAddress); err != nil {
		return
	}

	if err = buf.WriteUint16(pk.MTU, byteorder.BigEndian); err != nil {
		return
	}

	return buf.WriteBool(pk.Secure)
}

// IncompatibleProtocolVersion refuses an OpenConnectionRequest1 carrying another protocol version.
type IncompatibleProtocolVersion struct {
	ServerProtocol byte
	ServerGUID     int64
}

func (pk *IncompatibleProtocolVersion) ID() ID {
	return IDIncompatibleProtocolVersion
}

func (pk *IncompatibleProtocolVersion) Read(buf *buffer.Buffer) (err error) {
	if pk.ServerProtocol, err = buf.ReadUint8(); err != nil {
		return
	}

	if err = buf.ReadMagic(); err != nil {
		return
	}

	pk.ServerGUID, err = buf.ReadInt64(byteorder.BigEndian)
	return
}

func (pk *IncompatibleProtocolVersion) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteUint8(pk.ServerProtocol); err != nil {
		return
	}

	if err = buf.WriteMagic(); err != nil {
		return
	}

	return buf.WriteInt64(pk.ServerGUID, byteorder.BigEndian)
}

// NoFreeIncomingConnections refuses an OpenConnectionRequest2 while the server is full.
type NoFreeIncomingConnections struct {
	ServerGUID int64
}

func (pk *NoFreeIncomingConnections) ID() ID {
	return IDNoFreeIncomingConnections
}

func (pk *NoFreeIncomingConnections) Read(buf *buffer.Buffer) (err error) {
	if err = buf.ReadMagic(); err != nil {
		return
	}

	pk.ServerGUID, err = buf.ReadInt64(byteorder.BigEndian)
	return
}

func (pk *NoFreeIncomingConnections) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteMagic(); err != nil {
		return
	}

	return buf.WriteInt64(pk.ServerGUID, byteorder.BigEndian)
}
