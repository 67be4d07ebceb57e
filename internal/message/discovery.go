package message

import (
	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/binary/byteorder"
)

// UnconnectedPing asks a server for its identity without opening a session. With OpenConnections
// set the server stays silent unless it has room for another connection.
type UnconnectedPing struct {
	SendTimestamp   int64
	ClientGUID      int64
	OpenConnections bool
}

func (pk *UnconnectedPing) ID() ID {
	if pk.OpenConnections {
		return IDUnconnectedPingOpenConnections
	}
	return IDUnconnectedPing
}

func (pk *UnconnectedPing) Read(buf *buffer.Buffer) (err error) {
	if pk.SendTimestamp, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.ReadMagic(); err != nil {
		return
	}

	pk.ClientGUID, err = buf.ReadInt64(byteorder.BigEndian)
	return
}

func (pk *UnconnectedPing) Write(buf *buffer.Buffer) (err error) {
	if err = buf.WriteInt64(pk.SendTimestamp, byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.WriteMagic(); err != nil {
		return
	}

	return buf.WriteInt64(pk.ClientGUID, byteorder.BigEndian)
}

// UnconnectedPong answers an UnconnectedPing. The descriptor is free text chosen by the server,
// MCPE servers pack their MOTD, version and player counts into it separated by semicolons.
type UnconnectedPong struct {
	SendTimestamp int64
	ServerGUID    int64
	Descriptor    string
}

func (pk *UnconnectedPong) ID() ID {
	return IDUnconnectedPong
}

func (pk *UnconnectedPong) Read(buf *buffer.Buffer) (err error) {
	if pk.SendTimestamp, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	if pk.ServerGUID, err = buf.ReadInt64(byteorder.BigEndian); err != nil {
		return
	}

	if err = buf.ReadMagic(); err != nil {
		return
	}

	pk.Descriptor, err = buf.ReadString()
	return
}

func (pk *UnconnectedPong) Write(buf *buffer.Buffer) (err error) {
	for _, v := range []int64{pk.SendTimestamp, pk.ServerGUID} {
		if err = buf.WriteInt64(v, byteorder.BigEndian); err != nil {
			return
		}
	}

	if err = buf.WriteMagic(); err != nil {
		return
	}

	return buf.WriteString(pk.Descriptor)
}
