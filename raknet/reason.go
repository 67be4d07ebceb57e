package raknet

// DisconnectReason tells why a connection was closed.
type DisconnectReason uint8

const (
	// The connection was closed locally through Connection.Close.
	ReasonClosed DisconnectReason = iota
	// The peer sent a disconnect notification.
	ReasonRemoteClosed
	// The peer went silent or stopped acknowledging reliable datagrams.
	ReasonTimeout
	// The peer sent a datagram that contradicts the protocol.
	ReasonProtocolError
	// The listener was shut down.
	ReasonServerClosed
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonRemoteClosed:
		return "remote closed"
	case ReasonTimeout:
		return "timeout"
	case ReasonProtocolError:
		return "protocol error"
	case ReasonServerClosed:
		return "server closed"
	default:
		return "unknown"
	}
}
