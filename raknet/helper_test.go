package raknet

import (
	"bytes"
	"io"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/DaylightNebula/RakNet/internal/binary/buffer"
	"github.com/DaylightNebula/RakNet/internal/message"
	"github.com/DaylightNebula/RakNet/internal/protocol"
)

func init() {
	SetLogger(pterm.DefaultLogger.WithWriter(io.Discard).WithLevel(pterm.LogLevelDisabled))
}

var serverAddr = net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19132}

type packet struct {
	addr string
	b    []byte
}

// recorder is a Transport that keeps every packet written to it.
type recorder struct {
	mu      sync.Mutex
	packets []packet
}

func (r *recorder) WriteTo(b []byte, addr net.Addr) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.packets = append(r.packets, packet{addr: addr.String(), b: slices.Clone(b)})
	return len(b), nil
}

// Removes and returns the packets written to addr.
func (r *recorder) take(addr string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var taken [][]byte
	kept := r.packets[:0]

	for _, p := range r.packets {
		if p.addr == addr {
			taken = append(taken, p.b)
			continue
		}
		kept = append(kept, p)
	}

	r.packets = kept
	return taken
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type fixture struct {
	l   *Listener
	rec *recorder
	clk *clock
}

func newFixture(t *testing.T, configure func(*Config), opts ...Option) *fixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.GUID = 0x0102030405060708
	cfg.Descriptor = "MCPE;Test Server;390;1.14.60;0;10;"
	if configure != nil {
		configure(&cfg)
	}

	f := &fixture{
		rec: &recorder{},
		clk: &clock{t: time.Unix(1700000000, 0)},
	}

	l, err := NewListener(cfg, f.rec, append([]Option{WithClock(f.clk.now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}

	f.l = l
	return f
}

// peer plays the client side of a connection against the listener.
type peer struct {
	t    *testing.T
	f    *fixture
	addr *net.UDPAddr
	guid int64

	seq           uint32
	reliableIndex uint32
	orderIndex    uint32
}

func (f *fixture) peer(t *testing.T, n byte) *peer {
	return &peer{
		t:    t,
		f:    f,
		addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, n), Port: 40000 + int(n)},
		guid: int64(n) << 32,
	}
}

func (p *peer) ingest(b []byte) {
	p.f.l.Ingest(p.addr, b)
}

// Returns the packets the listener sent to the peer since the last call.
func (p *peer) take() [][]byte {
	return p.f.rec.take(p.addr.String())
}

func (p *peer) sendOffline(msg message.Message) {
	p.t.Helper()

	b, err := message.Marshal(msg)
	if err != nil {
		p.t.Fatalf("Marshal failed: %v", err)
	}
	p.ingest(b)
}

// Sends the frames in one datagram and returns its sequence number.
func (p *peer) sendDatagram(frames ...*protocol.Frame) uint32 {
	p.t.Helper()

	dg := protocol.Datagram{Sequence: p.seq, Frames: frames}
	p.seq = protocol.Uint24Add(p.seq, 1)

	buf := buffer.New(0)
	if err := dg.Write(buf); err != nil {
		p.t.Fatalf("Datagram.Write failed: %v", err)
	}

	p.ingest(buf.Bytes())
	return dg.Sequence
}

// Returns a reliable ordered frame on channel 0 with the next indexes.
func (p *peer) orderedFrame(content []byte) *protocol.Frame {
	f := &protocol.Frame{
		Reliability:   protocol.ReliableOrdered,
		ReliableIndex: p.reliableIndex,
		OrderIndex:    p.orderIndex,
		Content:       content,
	}

	p.reliableIndex++
	p.orderIndex++
	return f
}

func (p *peer) sendMessage(msg message.Message) {
	p.t.Helper()

	b, err := message.Marshal(msg)
	if err != nil {
		p.t.Fatalf("Marshal failed: %v", err)
	}
	p.sendDatagram(p.orderedFrame(b))
}

func (p *peer) sendReceipt(flag uint8, sequences ...uint32) {
	p.t.Helper()

	buf := buffer.New(0)
	r := protocol.Receipt{Flag: flag, Sequences: sequences}
	if err := r.Write(buf); err != nil {
		p.t.Fatalf("Receipt.Write failed: %v", err)
	}

	p.ingest(buf.Bytes())
}

// Acknowledges every data datagram among the packets.
func (p *peer) acknowledge(packets [][]byte) {
	p.t.Helper()

	var seqs []uint32
	for _, dg := range datagramsOf(p.t, packets) {
		seqs = append(seqs, dg.Sequence)
	}

	if len(seqs) > 0 {
		p.sendReceipt(protocol.FLAG_ACK, seqs...)
	}
}

// Completes the offline handshake and returns the new connection.
func (p *peer) open() *Connection {
	p.t.Helper()

	p.sendOffline(&message.OpenConnectionRequest2{ServerAddress: serverAddr, MTU: 1400, ClientGUID: p.guid})

	conn, ok := p.f.l.Connection(p.addr)
	if !ok {
		p.t.Fatal("no connection after OpenConnectionRequest2")
	}

	p.take()
	return conn
}

// Completes the online handshake of an opened connection and acknowledges everything the
// listener sent.
func (p *peer) establish(conn *Connection) {
	p.t.Helper()

	p.sendMessage(&message.ConnectionRequest{ClientGUID: p.guid, RequestTimestamp: 5})
	p.sendMessage(&message.NewIncomingConnection{ServerAddress: serverAddr, RequestTimestamp: 5, AcceptedTimestamp: 6})

	if state := conn.State(); state != StateConnected {
		p.t.Fatalf("state after handshake = %v", state)
	}

	p.acknowledge(p.take())
	p.take()
}

func (p *peer) connect() *Connection {
	p.t.Helper()

	conn := p.open()
	p.establish(conn)
	return conn
}

// Decodes the data datagrams among the packets, skipping receipts and unconnected messages.
func datagramsOf(t *testing.T, packets [][]byte) []*protocol.Datagram {
	t.Helper()

	var dgs []*protocol.Datagram
	for _, b := range packets {
		if b[0]&protocol.FLAG_DATAGRAM == 0 || b[0]&(protocol.FLAG_ACK|protocol.FLAG_NACK) != 0 {
			continue
		}

		dg := &protocol.Datagram{}
		if err := dg.Read(buffer.From(b)); err != nil {
			t.Fatalf("listener sent an invalid datagram: %v", err)
		}
		dgs = append(dgs, dg)
	}
	return dgs
}

// Decodes the receipts among the packets.
func receiptsOf(t *testing.T, packets [][]byte) []*protocol.Receipt {
	t.Helper()

	var receipts []*protocol.Receipt
	for _, b := range packets {
		if b[0]&protocol.FLAG_DATAGRAM == 0 || b[0]&(protocol.FLAG_ACK|protocol.FLAG_NACK) == 0 {
			continue
		}

		r := &protocol.Receipt{}
		if err := r.Read(buffer.From(b)); err != nil {
			t.Fatalf("listener sent an invalid receipt: %v", err)
		}
		receipts = append(receipts, r)
	}
	return receipts
}

// Returns the content of every unfragmented frame among the packets.
func contentsOf(t *testing.T, packets [][]byte) [][]byte {
	t.Helper()

	var contents [][]byte
	for _, dg := range datagramsOf(t, packets) {
		for _, f := range dg.Frames {
			if !f.Split {
				contents = append(contents, f.Content)
			}
		}
	}
	return contents
}

// Returns the first unconnected reply with the given ID, its ID already consumed.
func replyOf(t *testing.T, packets [][]byte, id message.ID) *buffer.Buffer {
	t.Helper()

	for _, b := range packets {
		if b[0] == id {
			buf := buffer.From(b)
			buf.Shift(1)
			return buf
		}
	}

	t.Fatalf("no reply with id 0x%02x among %d packets", id, len(packets))
	return nil
}

// events collects the events of a connection.
type events struct {
	mu   sync.Mutex
	list []ConnectionEvent
}

func record(c *Connection) *events {
	e := &events{}
	c.Subscribe(func(ev ConnectionEvent) {
		e.mu.Lock()
		e.list = append(e.list, ev)
		e.mu.Unlock()
	})
	return e
}

func (e *events) all() []ConnectionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.list)
}

func eventsOf[T ConnectionEvent](e *events) []T {
	var out []T
	for _, ev := range e.all() {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func containsContent(contents [][]byte, want []byte) bool {
	return slices.ContainsFunc(contents, func(c []byte) bool {
		return bytes.Equal(c, want)
	})
}

// Decodes the first message with the given ID among the contents into msg.
func messageOf(t *testing.T, contents [][]byte, msg message.Message) {
	t.Helper()

	for _, c := range contents {
		if len(c) > 0 && c[0] == msg.ID() {
			buf := buffer.From(c)
			buf.Shift(1)

			if err := msg.Read(buf); err != nil {
				t.Fatalf("decoding message 0x%02x failed: %v", msg.ID(), err)
			}
			return
		}
	}

	t.Fatalf("no message 0x%02x among %d frames", msg.ID(), len(contents))
}
