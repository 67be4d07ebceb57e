package raknet

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/DaylightNebula/RakNet/internal/message"
)

func TestUnconnectedPing(t *testing.T) {
	f := newFixture(t, nil)
	p := f.peer(t, 1)

	check := func(t *testing.T) {
		t.Helper()

		p.sendOffline(&message.UnconnectedPing{SendTimestamp: 12345, ClientGUID: p.guid})

		pong := message.UnconnectedPong{}
		if err := pong.Read(replyOf(t, p.take(), message.IDUnconnectedPong)); err != nil {
			t.Fatalf("UnconnectedPong.Read failed: %v", err)
		}

		if pong.SendTimestamp != 12345 {
			t.Errorf("pong timestamp = %d, want 12345", pong.SendTimestamp)
		}

		if pong.ServerGUID != f.l.GUID() || pong.Descriptor != f.l.Config().Descriptor {
			t.Errorf("pong identity = (%x, %q)", pong.ServerGUID, pong.Descriptor)
		}
	}

	t.Run("no session", func(t *testing.T) {
		check(t)

		if f.l.Len() != 0 {
			t.Errorf("ping created %d connections", f.l.Len())
		}
	})

	t.Run("with session", func(t *testing.T) {
		p.connect()
		check(t)
	})
}

func TestUnconnectedPingOpenConnections(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.MaxConnections = 1
	})

	p := f.peer(t, 1)
	ping := &message.UnconnectedPing{SendTimestamp: 1, OpenConnections: true}

	p.sendOffline(ping)
	if len(p.take()) != 1 {
		t.Fatal("ping for open connections not answered")
	}

	f.peer(t, 2).open()

	p.sendOffline(ping)
	if packets := p.take(); len(packets) != 0 {
		t.Errorf("full listener answered a ping for open connections: %x", packets)
	}
}

func TestOpenConnectionRequest1(t *testing.T) {
	tests := []struct {
		name string
		mtu  int
		want uint16
	}{
		{name: "adds headers", mtu: 1400, want: 1428},
		{name: "caps at max", mtu: 1492, want: 1500},
		{name: "small", mtu: 576, want: 604},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			p := f.peer(t, 1)

			p.sendOffline(&message.OpenConnectionRequest1{Protocol: 11, MTU: tt.mtu})

			reply := message.OpenConnectionReply1{}
			if err := reply.Read(replyOf(t, p.take(), message.IDOpenConnectionReply1)); err != nil {
				t.Fatalf("OpenConnectionReply1.Read failed: %v", err)
			}

			if reply.MTU != tt.want {
				t.Errorf("reply MTU = %d, want %d", reply.MTU, tt.want)
			}

			if reply.ServerGUID != f.l.GUID() || reply.Secure {
				t.Errorf("reply = %+v", reply)
			}
		})
	}
}

func TestIncompatibleProtocolVersion(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, nil, WithMetrics(metrics))
	p := f.peer(t, 1)

	p.sendOffline(&message.OpenConnectionRequest1{Protocol: 10, MTU: 1400})

	reply := message.IncompatibleProtocolVersion{}
	if err := reply.Read(replyOf(t, p.take(), message.IDIncompatibleProtocolVersion)); err != nil {
		t.Fatalf("IncompatibleProtocolVersion.Read failed: %v", err)
	}

	if reply.ServerProtocol != 11 || reply.ServerGUID != f.l.GUID() {
		t.Errorf("reply = %+v", reply)
	}

	if got := testutil.ToFloat64(metrics.Rejected.WithLabelValues("protocol")); got != 1 {
		t.Errorf("rejected handshakes = %v, want 1", got)
	}
}

func TestOpenConnectionRequest2(t *testing.T) {
	f := newFixture(t, nil)
	p := f.peer(t, 1)

	var created []*Connection
	f.l.Subscribe(func(e ServerEvent) {
		if nc, ok := e.(NewConnectionEvent); ok {
			created = append(created, nc.Conn)
		}
	})

	request := &message.OpenConnectionRequest2{ServerAddress: serverAddr, MTU: 1400, ClientGUID: p.guid}

	for i := 0; i < 3; i++ {
		p.sendOffline(request)

		reply := message.OpenConnectionReply2{}
		if err := reply.Read(replyOf(t, p.take(), message.IDOpenConnectionReply2)); err != nil {
			t.Fatalf("OpenConnectionReply2.Read failed: %v", err)
		}

		if reply.MTU != 1400 || reply.ClientAddress.Port != p.addr.Port || !reply.ClientAddress.IP.Equal(p.addr.IP) {
			t.Errorf("attempt %d: reply = %+v", i, reply)
		}
	}

	if f.l.Len() != 1 {
		t.Errorf("registry holds %d connections, want 1", f.l.Len())
	}

	if len(created) != 1 {
		t.Fatalf("%d NewConnection events, want 1", len(created))
	}

	conn := created[0]
	if conn.GUID() != p.guid || conn.MTU() != 1400 || conn.State() != StateHandshaking {
		t.Errorf("connection = guid %x, mtu %d, state %v", conn.GUID(), conn.MTU(), conn.State())
	}
}

func TestOpenConnectionRequest2ClampsMTU(t *testing.T) {
	tests := []struct {
		mtu  uint16
		want int
	}{
		{mtu: 100, want: 500},
		{mtu: 9000, want: 1500},
		{mtu: 1200, want: 1200},
	}

	for _, tt := range tests {
		f := newFixture(t, nil)
		p := f.peer(t, 1)

		p.sendOffline(&message.OpenConnectionRequest2{ServerAddress: serverAddr, MTU: tt.mtu, ClientGUID: p.guid})

		conn, ok := f.l.Connection(p.addr)
		if !ok {
			t.Fatalf("mtu %d: no connection", tt.mtu)
		}

		if conn.MTU() != tt.want {
			t.Errorf("mtu %d: negotiated %d, want %d", tt.mtu, conn.MTU(), tt.want)
		}
	}
}

func TestNoFreeIncomingConnections(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.MaxConnections = 1
	})

	f.peer(t, 1).open()

	p := f.peer(t, 2)
	p.sendOffline(&message.OpenConnectionRequest2{ServerAddress: serverAddr, MTU: 1400, ClientGUID: p.guid})

	reply := message.NoFreeIncomingConnections{}
	if err := reply.Read(replyOf(t, p.take(), message.IDNoFreeIncomingConnections)); err != nil {
		t.Fatalf("NoFreeIncomingConnections.Read failed: %v", err)
	}

	if f.l.Len() != 1 {
		t.Errorf("registry holds %d connections, want 1", f.l.Len())
	}
}

func TestUnconnectedGarbageIsDropped(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, nil, WithMetrics(metrics))
	p := f.peer(t, 1)

	p.ingest([]byte{0x42, 0x01, 0x02})
	p.ingest([]byte{message.IDOpenConnectionRequest2, 0x00})
	p.ingest(append([]byte{message.IDUnconnectedPing}, make([]byte, 32)...))
	p.sendOffline(&message.UnconnectedPong{ServerGUID: 7, Descriptor: "MCPE;Other;"})

	if packets := p.take(); len(packets) != 0 {
		t.Errorf("listener answered garbage with %d packets", len(packets))
	}

	if got := testutil.ToFloat64(metrics.Dropped.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown drops = %v, want 1", got)
	}

	if got := testutil.ToFloat64(metrics.Dropped.WithLabelValues("unexpected")); got != 1 {
		t.Errorf("unexpected drops = %v, want 1", got)
	}

	if got := testutil.ToFloat64(metrics.Dropped.WithLabelValues("underrun")); got != 1 {
		t.Errorf("underrun drops = %v, want 1", got)
	}

	if got := testutil.ToFloat64(metrics.Dropped.WithLabelValues("malformed")); got != 1 {
		t.Errorf("malformed drops = %v, want 1", got)
	}

	if f.l.Len() != 0 {
		t.Errorf("garbage created %d connections", f.l.Len())
	}
}

type blockList map[string]bool

func (b blockList) Blocked(ip net.IP) bool {
	return b[ip.String()]
}

func TestBlockList(t *testing.T) {
	f := newFixture(t, nil, WithBlockList(blockList{"10.0.0.1": true}))

	blocked, allowed := f.peer(t, 1), f.peer(t, 2)

	for _, p := range []*peer{blocked, allowed} {
		p.sendOffline(&message.UnconnectedPing{SendTimestamp: 1})
		p.sendOffline(&message.OpenConnectionRequest2{ServerAddress: serverAddr, MTU: 1400, ClientGUID: p.guid})
	}

	if packets := blocked.take(); len(packets) != 0 {
		t.Errorf("blocked address received %d packets", len(packets))
	}

	if packets := allowed.take(); len(packets) != 2 {
		t.Errorf("allowed address received %d packets, want 2", len(packets))
	}

	if f.l.Len() != 1 {
		t.Errorf("registry holds %d connections, want 1", f.l.Len())
	}
}

func TestStartEmitsOnce(t *testing.T) {
	f := newFixture(t, nil)

	started := 0
	f.l.Subscribe(func(e ServerEvent) {
		if _, ok := e.(StartedEvent); ok {
			started++
		}
	})

	for i := 0; i < 2; i++ {
		if err := f.l.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}

	if started != 1 {
		t.Errorf("%d Started events, want 1", started)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, nil)
	p1, p2 := f.peer(t, 1), f.peer(t, 2)

	c1 := p1.connect()
	c2 := p2.open()

	var order []string
	f.l.Subscribe(func(e ServerEvent) {
		if _, ok := e.(ShuttingDownEvent); ok {
			order = append(order, "shutting down")
		}
	})

	for _, c := range []*Connection{c1, c2} {
		c.Subscribe(func(e ConnectionEvent) {
			if d, ok := e.(DisconnectedEvent); ok {
				order = append(order, d.Reason.String())
			}
		})
	}

	if err := f.l.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"shutting down", "server closed", "server closed"}
	if len(order) != len(want) {
		t.Fatalf("events %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("events %v, want %v", order, want)
		}
	}

	if f.l.Len() != 0 {
		t.Errorf("registry holds %d connections after shutdown", f.l.Len())
	}

	if !containsContent(contentsOf(t, p1.take()), []byte{message.IDDisconnectNotification}) {
		t.Error("no disconnect notification sent")
	}

	p1.sendOffline(&message.UnconnectedPing{SendTimestamp: 1})
	if packets := p1.take(); len(packets) != 0 {
		t.Error("closed listener answered a ping")
	}

	if err := f.l.Shutdown(); !errors.Is(err, ErrServerClosed) {
		t.Errorf("second Shutdown returned %v", err)
	}

	if err := f.l.Start(); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Start after Shutdown returned %v", err)
	}
}

// scriptedConn is a net.PacketConn whose reads fail with the queued errors and then report the
// connection as closed.
type scriptedConn struct {
	mu     sync.Mutex
	errs   []error
	closed bool
}

func (c *scriptedConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.errs) == 0 {
		return 0, nil, net.ErrClosed
	}

	err := c.errs[0]
	c.errs = c.errs[1:]
	return 0, nil, err
}

func (c *scriptedConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	return len(b), nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *scriptedConn) LocalAddr() net.Addr              { return &serverAddr }
func (c *scriptedConn) SetDeadline(time.Time) error      { return nil }
func (c *scriptedConn) SetReadDeadline(time.Time) error  { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestServe(t *testing.T) {
	broken := errors.New("network is down")

	tests := []struct {
		name string
		errs []error
		want error
	}{
		{name: "closed socket", want: ErrServerClosed},
		{name: "timeouts are retried", errs: []error{timeoutError{}, timeoutError{}}, want: ErrServerClosed},
		{name: "read error", errs: []error{timeoutError{}, broken}, want: broken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			pc := &scriptedConn{errs: tt.errs}

			if err := f.l.Serve(context.Background(), pc); !errors.Is(err, tt.want) {
				t.Fatalf("Serve returned %v, want %v", err, tt.want)
			}

			if !pc.closed {
				t.Error("socket left open")
			}

			if err := f.l.Shutdown(); !errors.Is(err, ErrServerClosed) {
				t.Errorf("listener still running, Shutdown returned %v", err)
			}
		})
	}
}

func TestSessionsMetric(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, nil, WithMetrics(metrics))

	conn := f.peer(t, 1).connect()
	f.peer(t, 2).open()

	if got := testutil.ToFloat64(metrics.Sessions); got != 2 {
		t.Errorf("sessions = %v, want 2", got)
	}

	conn.Close()

	if got := testutil.ToFloat64(metrics.Sessions); got != 1 {
		t.Errorf("sessions = %v, want 1", got)
	}

	if got := testutil.ToFloat64(metrics.Disconnects.WithLabelValues("closed")); got != 1 {
		t.Errorf("closed disconnects = %v, want 1", got)
	}
}

func TestConnectionsSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	for _, n := range []byte{3, 1, 2} {
		f.peer(t, n).open()
	}

	conns := f.l.Connections()
	if len(conns) != 3 {
		t.Fatalf("%d connections, want 3", len(conns))
	}

	for i, c := range conns {
		if want := 40001 + i; c.PeerAddr().Port != want {
			t.Errorf("connection %d has port %d, want %d", i, c.PeerAddr().Port, want)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	var bus Bus[int]
	var got []int

	unsubscribe := bus.Subscribe(func(v int) {
		got = append(got, v)
	})

	bus.Publish(1)
	unsubscribe()
	bus.Publish(2)

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("received %v, want [1]", got)
	}
}

func TestBusUnsubscribeDuringPublish(t *testing.T) {
	var bus Bus[int]
	var got []int
	var unsubscribe func()

	bus.Subscribe(func(int) {
		unsubscribe()
	})
	unsubscribe = bus.Subscribe(func(v int) {
		got = append(got, v)
	})

	bus.Publish(1)

	if len(got) != 0 {
		t.Errorf("removed subscriber received %v", got)
	}
}

func TestDispatcherKeepsOrderWhenReentered(t *testing.T) {
	var d dispatcher
	var got []int

	d.enqueue(func() {
		got = append(got, 1)
		d.enqueue(func() { got = append(got, 3) })
		d.drain()
		got = append(got, 2)
	})
	d.drain()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("delivery order %v, want [1 2 3]", got)
	}
}
