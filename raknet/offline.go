package raknet

import (
	"fmt"
	"net"
	"time"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/message"
	"github.com/DaylightNebula/RakNet/internal/protocol"
)

// Handles a packet from an address without a connection, or an unconnected message from an
// address that has one. Replies are pure functions of the request and the listener identity,
// only OpenConnectionRequest2 creates state.
func (l *Listener) handleUnconnected(addr *net.UDPAddr, b []byte, now time.Time) {
	if l.blockList != nil && l.blockList.Blocked(addr.IP) {
		l.metrics.Dropped.WithLabelValues("blocked").Inc()
		logger.Debug("dropped packet from blocked address", logger.Args("addr", addr.String()))
		return
	}

	buf := buffer.From(b)

	id, err := buf.ReadUint8()
	if err != nil {
		l.drop(addr, err)
		return
	}

	switch id {
	case message.IDUnconnectedPing, message.IDUnconnectedPingOpenConnections:
		err = l.handleUnconnectedPing(addr, id, buf)
	case message.IDOpenConnectionRequest1:
		err = l.handleOpenConnectionRequest1(addr, buf)
	case message.IDOpenConnectionRequest2:
		err = l.handleOpenConnectionRequest2(addr, buf, now)
	default:
		if message.IsOffline(id) {
			l.metrics.Dropped.WithLabelValues("unexpected").Inc()
			logger.Debug("ignored unconnected reply", logger.Args("addr", addr.String(), "id", fmt.Sprintf("0x%02x", id)))
			return
		}

		l.metrics.Dropped.WithLabelValues("unknown").Inc()
		logger.Warn("unrecognized unconnected message", logger.Args("addr", addr.String(), "id", fmt.Sprintf("0x%02x", id)))
		return
	}

	if err != nil {
		l.drop(addr, err)
	}
}

// Returns whether the listener refuses new connections.
func (l *Listener) full() bool {
	return l.config.MaxConnections >= 0 && l.registry.len() >= l.config.MaxConnections
}

// Answers a discovery ping with the server GUID and descriptor. A ping that asks for open
// connections is ignored while the listener is full.
func (l *Listener) handleUnconnectedPing(addr *net.UDPAddr, id message.ID, buf *buffer.Buffer) error {
	msg := message.UnconnectedPing{OpenConnections: id == message.IDUnconnectedPingOpenConnections}
	if err := msg.Read(buf); err != nil {
		return err
	}

	if msg.OpenConnections && l.full() {
		return nil
	}

	l.writeMessage(addr, &message.UnconnectedPong{
		SendTimestamp: msg.SendTimestamp,
		ServerGUID:    l.config.GUID,
		Descriptor:    l.config.Descriptor,
	})
	return nil
}

// Handles an open connection request 1 message. The reply carries the probed MTU plus the IP and
// UDP headers, capped to the maximum MTU.
func (l *Listener) handleOpenConnectionRequest1(addr *net.UDPAddr, buf *buffer.Buffer) error {
	msg := message.OpenConnectionRequest1{}
	if err := msg.Read(buf); err != nil {
		return err
	}

	if msg.Protocol != l.config.ProtocolVersion {
		l.metrics.Rejected.WithLabelValues("protocol").Inc()
		logger.Debug("incompatible protocol version", logger.Args("addr", addr.String(), "protocol", msg.Protocol))

		l.writeMessage(addr, &message.IncompatibleProtocolVersion{
			ServerProtocol: l.config.ProtocolVersion,
			ServerGUID:     l.config.GUID,
		})
		return nil
	}

	l.writeMessage(addr, &message.OpenConnectionReply1{
		ServerGUID: l.config.GUID,
		Secure:     false,
		MTU:        uint16(min(msg.MTU+protocol.UDP_HEADER_SIZE, l.config.MaxMTU)),
	})
	return nil
}

// Handles an open connection request 2 message. This is where a connection is created. A repeated
// request from an address in the middle of its handshake is answered again without creating a
// second connection.
func (l *Listener) handleOpenConnectionRequest2(addr *net.UDPAddr, buf *buffer.Buffer, now time.Time) error {
	msg := message.OpenConnectionRequest2{}
	if err := msg.Read(buf); err != nil {
		return err
	}

	if conn := l.registry.get(addrKey(addr)); conn != nil {
		logger.Debug("repeated open connection request", logger.Args("addr", addr.String(), "state", conn.state.String()))
		l.writeMessage(addr, l.openConnectionReply2(addr, conn.mtu))
		return nil
	}

	if l.full() {
		l.metrics.Rejected.WithLabelValues("full").Inc()
		logger.Warn("refused connection", logger.Args("addr", addr.String(), "err", ErrTooManyConnections))

		l.writeMessage(addr, &message.NoFreeIncomingConnections{ServerGUID: l.config.GUID})
		return nil
	}

	mtu := min(max(int(msg.MTU), l.config.MinMTU), l.config.MaxMTU)
	conn := newConnection(l, addr, msg.ClientGUID, mtu, now)

	if err := l.registry.add(conn); err != nil {
		return err
	}

	l.metrics.Sessions.Inc()
	logger.Info("new connection", logger.Args("addr", addr.String(), "guid", msg.ClientGUID, "mtu", mtu))

	l.emit(NewConnectionEvent{Conn: conn})
	l.writeMessage(addr, l.openConnectionReply2(addr, mtu))
	return nil
}

func (l *Listener) openConnectionReply2(addr *net.UDPAddr, mtu int) *message.OpenConnectionReply2 {
	return &message.OpenConnectionReply2{
		ServerGUID:    l.config.GUID,
		ClientAddress: *addr,
		MTU:           uint16(mtu),
		Secure:        false,
	}
}
