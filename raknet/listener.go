package raknet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/message"
	"github.com/DaylightNebula/RakNet/internal/protocol"
)

// Transport hands datagrams to the network. Every net.PacketConn satisfies it.
type Transport interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// BlockList reports addresses whose unconnected traffic is dropped.
type BlockList interface {
	Blocked(ip net.IP) bool
}

// Option configures a Listener.
type Option func(*Listener)

// WithMetrics makes the listener update m instead of unregistered collectors.
func WithMetrics(m *Metrics) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

// WithTracer sets the tracer that records one span per connection.
func WithTracer(t trace.Tracer) Option {
	return func(l *Listener) {
		l.tracer = t
	}
}

// WithClock replaces time.Now. Tests use it together with Tick to drive timers.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		l.now = now
	}
}

// WithBlockList drops unconnected traffic from blocked addresses.
func WithBlockList(b BlockList) Option {
	return func(l *Listener) {
		l.blockList = b
	}
}

// Listener is a raknet server multiplexing many connections over one transport. It does not read
// from the network itself: packets are fed to Ingest and timers are driven by Tick, or both are
// run by Serve.
type Listener struct {
	config    Config
	transport Transport
	metrics   *Metrics
	tracer    trace.Tracer
	blockList BlockList
	now       func() time.Time

	// Timestamps exchanged with peers count milliseconds from here.
	epoch time.Time

	// mu guards the registry and the protocol state of every connection.
	mu       sync.Mutex
	registry *registry
	started  bool
	closed   bool

	events     Bus[ServerEvent]
	dispatcher dispatcher
}

// NewListener creates a listener that sends its datagrams through the transport.
func NewListener(config Config, transport Transport, opts ...Option) (*Listener, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if transport == nil {
		return nil, errors.New("raknet: nil transport")
	}

	l := &Listener{
		config:    config,
		transport: transport,
		now:       time.Now,
		registry:  newRegistry(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}

	if l.tracer == nil {
		l.tracer = defaultTracer()
	}

	l.epoch = l.now()
	return l, nil
}

// Returns the GUID of the listener.
func (l *Listener) GUID() int64 {
	return l.config.GUID
}

// Returns the configuration of the listener.
func (l *Listener) Config() Config {
	return l.config
}

// Subscribe registers fn for the server events and returns a function that unregisters it.
func (l *Listener) Subscribe(fn func(ServerEvent)) (unsubscribe func()) {
	return l.events.Subscribe(fn)
}

// Start emits StartedEvent. Calling it again does nothing.
func (l *Listener) Start() error {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return ErrServerClosed
	}

	if !l.started {
		l.started = true
		logger.Info("listener started", logger.Args("guid", l.config.GUID, "protocol", l.config.ProtocolVersion))
		l.emit(StartedEvent{})
	}

	l.mu.Unlock()
	l.dispatcher.drain()
	return nil
}

// Returns the registered connections ordered by peer address.
func (l *Listener) Connections() []*Connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.snapshot()
}

// Returns the connection registered for the address.
func (l *Listener) Connection(addr *net.UDPAddr) (*Connection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.registry.get(addrKey(addr))
	return c, c != nil
}

// Returns the number of registered connections.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.len()
}

// Ingest processes one packet received from addr. Packets from addresses with a connection go to
// that connection, everything else to the offline handshake. Ingest never fails: bad packets are
// logged and dropped, and a peer violating the protocol is disconnected. b is not retained.
func (l *Listener) Ingest(addr *net.UDPAddr, b []byte) {
	if addr == nil || len(b) == 0 {
		return
	}

	l.metrics.DatagramsReceived.Inc()
	l.metrics.BytesReceived.Add(float64(len(b)))

	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		l.metrics.Dropped.WithLabelValues("closed").Inc()
		return
	}

	now := l.now()

	if conn := l.registry.get(addrKey(addr)); conn != nil && b[0]&protocol.FLAG_DATAGRAM != 0 {
		if err := conn.handleDatagram(b, now); err != nil {
			l.drop(addr, err)

			if errors.Is(err, protocol.ErrProtocolViolation) {
				conn.close(ReasonProtocolError, now)
			}
		}

		conn.flush(now)
	} else {
		l.handleUnconnected(addr, b, now)
	}

	l.mu.Unlock()
	l.dispatcher.drain()
}

// Tick drives the timers of every connection: liveness, pings, retransmission and the flushing of
// queued messages and receipts. It is meant to be called at Config.TickInterval.
func (l *Listener) Tick() {
	l.mu.Lock()

	now := l.now()
	for _, c := range l.registry.snapshot() {
		c.update(now)
	}

	l.mu.Unlock()
	l.dispatcher.drain()
}

// Shutdown emits ShuttingDownEvent and closes every connection with ReasonServerClosed. The
// listener ignores packets afterwards.
func (l *Listener) Shutdown() error {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return ErrServerClosed
	}

	l.closed = true
	now := l.now()

	logger.Info("listener shutting down", logger.Args("connections", l.registry.len()))
	l.emit(ShuttingDownEvent{})

	for _, c := range l.registry.snapshot() {
		c.close(ReasonServerClosed, now)
	}

	l.mu.Unlock()
	l.dispatcher.drain()
	return nil
}

// Serve reads packets from pc into Ingest and calls Tick every Config.TickInterval until ctx is
// done or pc fails. It then shuts the listener down and closes pc. Serve returns ErrServerClosed
// when ctx is done or pc was closed, and the read error otherwise. Read timeouts are retried.
func (l *Listener) Serve(ctx context.Context, pc net.PacketConn) error {
	if err := l.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(l.config.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				l.Shutdown()
				pc.Close()
				return
			case <-ticker.C:
				l.Tick()
			}
		}
	}()

	b := make([]byte, protocol.MAX_MTU_SIZE)
	result := ErrServerClosed

	for {
		n, addr, err := pc.ReadFrom(b)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logger.Warn("socket read timed out", logger.Args("err", err))
				continue
			}

			logger.Error("socket read failed", logger.Args("err", err))
			result = fmt.Errorf("read packet: %w", err)
			break
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		l.Ingest(udpAddr, b[:n])
	}

	cancel()
	wg.Wait()
	return result
}

// Queues a server event for delivery once the lock is released. The caller holds l.mu.
func (l *Listener) emit(e ServerEvent) {
	l.dispatcher.enqueue(func() {
		l.events.Publish(e)
	})
}

// Returns the milliseconds elapsed since the listener was created.
func (l *Listener) timestamp(now time.Time) int64 {
	return now.Sub(l.epoch).Milliseconds()
}

// Hands a packet to the transport. Failures are logged, the protocol recovers through
// retransmission.
func (l *Listener) write(addr *net.UDPAddr, b []byte) {
	n, err := l.transport.WriteTo(b, addr)
	if err != nil {
		logger.Error("transport write failed", logger.Args("addr", addr.String(), "err", err))
		return
	}

	l.metrics.DatagramsSent.Inc()
	l.metrics.BytesSent.Add(float64(n))
}

// Encodes an unconnected message and sends it.
func (l *Listener) writeMessage(addr *net.UDPAddr, msg message.Message) {
	b, err := message.Marshal(msg)
	if err != nil {
		logger.Error("failed to encode message", logger.Args("addr", addr.String(), "id", msg.ID(), "err", err))
		return
	}

	l.write(addr, b)
}

// Logs and counts a packet that was dropped because of err.
func (l *Listener) drop(addr *net.UDPAddr, err error) {
	var reason string

	switch {
	case errors.Is(err, buffer.ErrBufferUnderrun):
		reason = "underrun"
	case errors.Is(err, protocol.ErrProtocolViolation):
		reason = "violation"
	default:
		reason = "malformed"
	}

	l.metrics.Dropped.WithLabelValues(reason).Inc()
	logger.Warn("dropped packet", logger.Args("addr", addr.String(), "reason", reason, "err", err))
}
