package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"

	"github.com/DaylightNebula/RakNet/raknet"
)

// session is the JSON form of a connection.
type session struct {
	Addr      string `json:"addr"`
	GUID      int64  `json:"guid"`
	MTU       int    `json:"mtu"`
	State     string `json:"state"`
	LatencyMS int64  `json:"latency_ms"`
}

func newRouter(l *raknet.Listener, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		conns := l.Connections()

		sessions := make([]session, 0, len(conns))
		for _, c := range conns {
			sessions = append(sessions, session{
				Addr:      c.PeerAddr().String(),
				GUID:      c.GUID(),
				MTU:       c.MTU(),
				State:     c.State().String(),
				LatencyMS: c.Latency().Milliseconds(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	})

	return r
}

// Serves the router on addr and returns a function that stops it.
func serveHTTP(addr string, l *raknet.Listener, gatherer prometheus.Gatherer) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           newRouter(l, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			pterm.Error.Printfln("http server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
