package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DaylightNebula/RakNet/internal/message"
	"github.com/DaylightNebula/RakNet/raknet"
)

type discard struct{}

func (discard) WriteTo(b []byte, addr net.Addr) (int, error) {
	return len(b), nil
}

func TestRouter(t *testing.T) {
	registry := prometheus.NewRegistry()

	l, err := raknet.NewListener(raknet.DefaultConfig(), discard{}, raknet.WithMetrics(raknet.NewMetrics(registry)))
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}

	b, err := message.Marshal(&message.OpenConnectionRequest2{
		ServerAddress: net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19132},
		MTU:           1400,
		ClientGUID:    7,
	})
	if err != nil {
		t.Fatal(err)
	}
	l.Ingest(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000}, b)

	srv := httptest.NewServer(newRouter(l, registry))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var sessions []session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decoding sessions failed: %v", err)
	}

	if len(sessions) != 1 || sessions[0].Addr != "10.0.0.1:4000" || sessions[0].GUID != 7 || sessions[0].State != "handshaking" {
		t.Errorf("sessions = %+v", sessions)
	}

	metrics, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metrics.Body.Close()

	body := new(strings.Builder)
	if _, err := io.Copy(body, metrics.Body); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(body.String(), "raknet_sessions 1") {
		t.Errorf("metrics do not report the session:\n%s", body)
	}
}
