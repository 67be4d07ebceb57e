package raknet

import (
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/message"
	"github.com/DaylightNebula/RakNet/internal/protocol"
)

// State represents the connection state of the connection.
type State uint8

const (
	// The offline handshake is done and the peer is expected to send a connection request.
	StateHandshaking State = iota
	// The peer answered the accepted connection request with a new incoming connection.
	StateConnected
	// The connection is being torn down.
	StateDisconnecting
	// The connection was removed from the listener.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// outgoing is a user message queued by Send until the listener frames it.
type outgoing struct {
	content     []byte
	reliability Reliability
	channel     uint8
}

// Connection is an established raknet session with one peer address. It handles the reliable
// encoding and decoding of messages, receipts to and from the other end of the connection. All of
// its protocol state is guarded by the lock of the listener that owns it.
type Connection struct {
	listener *Listener
	peerAddr *net.UDPAddr
	key      netip.AddrPort
	guid     int64
	mtu      int

	state        State
	requested    bool
	lastActivity time.Time
	lastPing     time.Time
	latency      time.Duration
	srtt         time.Duration

	sequenceWindow   *protocol.SequenceWindow
	messageWindow    *protocol.MessageWindow
	recoveryWindow   *protocol.RecoveryWindow
	splitWindows     map[uint16]*protocol.SplitWindow
	orderWindows     [protocol.MAX_ORDER_CHANNELS]*protocol.OrderWindow
	sequenceChannels [protocol.MAX_ORDER_CHANNELS]protocol.SequenceChannel

	sequenceNumber  uint32
	reliableIndex   uint32
	orderIndexes    [protocol.MAX_ORDER_CHANNELS]uint32
	sequenceIndexes [protocol.MAX_ORDER_CHANNELS]uint32
	splitID         uint16

	// Frames waiting to be packed into datagrams.
	pending []*protocol.Frame
	buffer  *buffer.Buffer

	queueMu sync.Mutex
	queue   []outgoing
	closed  atomic.Bool

	events Bus[ConnectionEvent]
	span   trace.Span
}

// Creates a connection for a peer that completed the offline handshake.
func newConnection(l *Listener, addr *net.UDPAddr, guid int64, mtu int, now time.Time) *Connection {
	peer := &net.UDPAddr{IP: slices.Clone(addr.IP), Port: addr.Port, Zone: addr.Zone}

	c := &Connection{
		listener:       l,
		peerAddr:       peer,
		key:            addrKey(peer),
		guid:           guid,
		mtu:            mtu,
		state:          StateHandshaking,
		lastActivity:   now,
		lastPing:       now,
		sequenceWindow: protocol.CreateSequenceWindow(),
		messageWindow:  protocol.CreateMessageWindow(),
		recoveryWindow: protocol.CreateRecoveryWindow(),
		splitWindows:   map[uint16]*protocol.SplitWindow{},
		buffer:         buffer.New(mtu),
	}

	c.span = startSessionSpan(l.tracer, c, now)
	return c
}

// Returns the address of the peer. It never changes.
func (c *Connection) PeerAddr() *net.UDPAddr {
	return c.peerAddr
}

// Returns the GUID the peer presented during the offline handshake.
func (c *Connection) GUID() int64 {
	return c.guid
}

// Returns the MTU negotiated during the offline handshake.
func (c *Connection) MTU() int {
	return c.mtu
}

// Returns the connection state of the connection
func (c *Connection) State() State {
	c.listener.mu.Lock()
	defer c.listener.mu.Unlock()
	return c.state
}

// Returns the round trip time measured by the last connected ping.
func (c *Connection) Latency() time.Duration {
	c.listener.mu.Lock()
	defer c.listener.mu.Unlock()
	return c.latency
}

// Subscribe registers fn for the events of the connection and returns a function that
// unregisters it. Events are delivered in the order they were emitted, never while the listener
// is locked, so fn may call back into the connection.
func (c *Connection) Subscribe(fn func(ConnectionEvent)) (unsubscribe func()) {
	return c.events.Subscribe(fn)
}

// Send queues a user message. A reliable message is delivered exactly once and in order on
// channel 0, an unreliable one may be lost. b must start with a user message ID and is copied.
// Send never blocks on the network.
func (c *Connection) Send(b []byte, reliable bool) error {
	if reliable {
		return c.SendReliability(b, ReliableOrdered, 0)
	}
	return c.SendReliability(b, Unreliable, 0)
}

// SendReliability queues a user message with an explicit reliability and order channel.
func (c *Connection) SendReliability(b []byte, reliability Reliability, channel uint8) error {
	if len(b) == 0 || !message.IsUser(b[0]) {
		return ErrReservedMessageID
	}

	if !reliability.Valid() || int(channel) >= protocol.MAX_ORDER_CHANNELS {
		return ErrInvalidReliability
	}

	if _, count, _ := c.fragmentation(len(b), reliability); uint32(count) > c.listener.config.MaxFragments {
		return ErrMessageTooLarge
	}

	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.queue = append(c.queue, outgoing{
		content:     slices.Clone(b),
		reliability: reliability,
		channel:     channel,
	})
	return nil
}

// Close sends a disconnect notification to the peer and removes the connection from its
// listener. Closing a closed connection does nothing.
func (c *Connection) Close() error {
	l := c.listener

	l.mu.Lock()
	c.close(ReasonClosed, l.now())
	l.mu.Unlock()

	l.dispatcher.drain()
	return nil
}

// Queues a connection event for delivery once the listener lock is released.
func (c *Connection) emit(e ConnectionEvent) {
	c.listener.dispatcher.enqueue(func() {
		c.events.Publish(e)
	})
}

// Tears the connection down. Buffered reassembly, ordering and retransmission state is released
// before the function returns and nothing is delivered afterwards.
func (c *Connection) close(reason DisconnectReason, now time.Time) {
	if c.state >= StateDisconnecting {
		return
	}

	c.state = StateDisconnecting
	c.closed.Store(true)

	if reason != ReasonRemoteClosed {
		c.drainQueue()

		if err := c.sendMessage(&message.DisconnectNotification{}, ReliableOrdered); err != nil {
			logger.Error("failed to encode disconnect notification", logger.Args("addr", c.peerAddr.String(), "err", err))
		}

		c.flushFrames(now)
	}

	c.release()

	l := c.listener
	if l.registry.remove(c) {
		l.metrics.Sessions.Dec()
	}

	c.state = StateClosed
	l.metrics.Disconnects.WithLabelValues(reason.String()).Inc()

	logger.Info("connection closed", logger.Args("addr", c.peerAddr.String(), "guid", c.guid, "reason", reason.String()))

	c.emit(DisconnectedEvent{Reason: reason})
	endSessionSpan(c.span, reason, now)
}

// Releases every buffer the connection holds.
func (c *Connection) release() {
	c.recoveryWindow.Clear()
	clear(c.splitWindows)
	clear(c.orderWindows[:])
	c.pending = nil

	c.queueMu.Lock()
	c.queue = nil
	c.queueMu.Unlock()
}

// Encodes a protocol message and queues its frames.
func (c *Connection) sendMessage(msg message.Message, reliability Reliability) error {
	b, err := message.Marshal(msg)
	if err != nil {
		return err
	}

	c.enqueueFrames(b, reliability, 0)
	return nil
}

// Handles one complete message received from the peer. Messages that are valid but not expected
// in the current state are ignored.
func (c *Connection) handleMessage(content []byte, now time.Time) error {
	buf := buffer.From(content)

	id, err := buf.ReadUint8()
	if err != nil {
		return err
	}

	switch id {
	case message.IDConnectedPing:
		return c.handleConnectedPing(buf, now)
	case message.IDConnectedPong:
		return c.handleConnectedPong(buf, now)
	case message.IDConnectionRequest:
		return c.handleConnectionRequest(buf, now)
	case message.IDNewIncomingConnection:
		return c.handleNewIncomingConnection(buf, now)
	case message.IDDetectLostConnections:
		return c.sendMessage(&message.ConnectedPing{ClientTimestamp: c.listener.timestamp(now)}, Unreliable)
	case message.IDDisconnectNotification:
		c.close(ReasonRemoteClosed, now)
		return nil
	}

	if message.IsUser(id) {
		return c.handleUserMessage(id, buf)
	}

	logger.Debug("ignored connected message", logger.Args("addr", c.peerAddr.String(), "id", fmt.Sprintf("0x%02x", id)))
	return nil
}

// Handles an incoming connected ping from the peer and returns an error if the operation has failed
func (c *Connection) handleConnectedPing(buf *buffer.Buffer, now time.Time) error {
	msg := message.ConnectedPing{}
	if err := msg.Read(buf); err != nil {
		return err
	}

	return c.sendMessage(&message.ConnectedPong{
		ClientTimestamp: msg.ClientTimestamp,
		ServerTimestamp: c.listener.timestamp(now),
	}, Unreliable)
}

// Handles the answer to one of our connected pings and updates the latency.
func (c *Connection) handleConnectedPong(buf *buffer.Buffer, now time.Time) error {
	msg := message.ConnectedPong{}
	if err := msg.Read(buf); err != nil {
		return err
	}

	sent := c.listener.epoch.Add(time.Duration(msg.ClientTimestamp) * time.Millisecond)
	rtt := now.Sub(sent)
	if rtt < 0 {
		return nil
	}

	c.latency = rtt
	c.sample(rtt)
	c.emit(LatencyEvent{Latency: rtt})
	return nil
}

// Handles an incoming connection request from the peer and returns an error if the operation has failed
func (c *Connection) handleConnectionRequest(buf *buffer.Buffer, now time.Time) error {
	msg := message.ConnectionRequest{}
	if err := msg.Read(buf); err != nil {
		return err
	}

	if c.state != StateHandshaking {
		logger.Debug("ignored connection request", logger.Args("addr", c.peerAddr.String(), "state", c.state.String()))
		return nil
	}

	c.requested = true

	return c.sendMessage(&message.ConnectionRequestAccepted{
		ClientAddress:     *c.peerAddr,
		RequestTimestamp:  msg.RequestTimestamp,
		AcceptedTimestamp: c.listener.timestamp(now),
	}, ReliableOrdered)
}

// Handles the last message of the online handshake.
func (c *Connection) handleNewIncomingConnection(buf *buffer.Buffer, now time.Time) error {
	msg := message.NewIncomingConnection{}
	if err := msg.Read(buf); err != nil {
		return err
	}

	if c.state != StateHandshaking || !c.requested {
		logger.Debug("ignored new incoming connection", logger.Args("addr", c.peerAddr.String(), "state", c.state.String()))
		return nil
	}

	c.state = StateConnected
	c.lastPing = now
	c.span.AddEvent("connected", trace.WithTimestamp(now))

	logger.Info("connection established", logger.Args("addr", c.peerAddr.String(), "guid", c.guid, "mtu", c.mtu))

	c.emit(ConnectedEvent{})
	return nil
}

// Hands a user message to the subscribers. User messages are only accepted once connected.
func (c *Connection) handleUserMessage(id message.ID, buf *buffer.Buffer) error {
	if c.state != StateConnected {
		logger.Debug("ignored user message before handshake", logger.Args("addr", c.peerAddr.String(), "id", fmt.Sprintf("0x%02x", id)))
		return nil
	}

	msg := message.UserMessage{MessageID: id}
	if err := msg.Read(buf); err != nil {
		return err
	}

	c.emit(MessageEvent{ID: msg.MessageID, Payload: msg.Payload})
	return nil
}
