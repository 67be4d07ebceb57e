package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/DaylightNebula/RakNet/internal/store"
	"github.com/DaylightNebula/RakNet/raknet"
)

type serveOptions struct {
	config     string
	address    string
	metrics    string
	blockList  string
	maxConns   int
	descriptor string
	debug      bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the listener",
		Long: `Run the listener until interrupted.

Settings are read from the YAML file given by --config, flags override it.

Examples:
  raknetd serve
  raknetd serve --config raknet.yml
  raknetd serve --address 0.0.0.0:19132 --metrics 127.0.0.1:9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&opts.address, "address", "a", "", "UDP address to listen on")
	cmd.Flags().StringVarP(&opts.metrics, "metrics", "m", "", "HTTP address serving /metrics and /sessions")
	cmd.Flags().StringVar(&opts.blockList, "block-list", "", "SQLite block list database")
	cmd.Flags().IntVar(&opts.maxConns, "max-connections", 0, "Maximum number of connections, negative for no limit")
	cmd.Flags().StringVar(&opts.descriptor, "descriptor", "", "Descriptor returned to discovery pings")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// Loads the configuration file, if any, and applies the flags that were set.
func loadConfig(cmd *cobra.Command, opts serveOptions) (raknet.Config, error) {
	cfg := raknet.DefaultConfig()

	if opts.config != "" {
		var err error
		if cfg, err = raknet.LoadConfig(opts.config); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Address = opts.address
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddress = opts.metrics
	}
	if flags.Changed("block-list") {
		cfg.BlockListPath = opts.blockList
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections = opts.maxConns
	}
	if flags.Changed("descriptor") {
		cfg.Descriptor = opts.descriptor
	}

	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	level := pterm.LogLevelInfo
	if opts.debug {
		level = pterm.LogLevelDebug
		pterm.EnableDebugMessages()
	}
	raknet.SetLogger(pterm.DefaultLogger.WithLevel(level).WithTime(true).WithTimeFormat("02 Jan 15:04:05"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	listenerOpts := []raknet.Option{raknet.WithMetrics(raknet.NewMetrics(registry))}

	if cfg.BlockListPath != "" {
		blocks, err := store.Open(cfg.BlockListPath)
		if err != nil {
			return fmt.Errorf("open block list: %w", err)
		}
		defer blocks.Close()

		listenerOpts = append(listenerOpts, raknet.WithBlockList(blocks))
	}

	pc, err := net.ListenPacket("udp", cfg.Address)
	if err != nil {
		return err
	}

	l, err := raknet.NewListener(cfg, pc, listenerOpts...)
	if err != nil {
		pc.Close()
		return err
	}

	l.Subscribe(func(e raknet.ServerEvent) {
		if nc, ok := e.(raknet.NewConnectionEvent); ok {
			watch(nc.Conn)
		}
	})

	if cfg.MetricsAddress != "" {
		stopHTTP, err := serveHTTP(cfg.MetricsAddress, l, registry)
		if err != nil {
			pc.Close()
			return err
		}
		defer stopHTTP()
	}

	pterm.DefaultHeader.Println("raknetd " + version)
	pterm.Info.Printfln("listening on %s (guid %d, protocol %d)", pc.LocalAddr(), cfg.GUID, cfg.ProtocolVersion)
	if cfg.MetricsAddress != "" {
		pterm.Info.Printfln("serving metrics on http://%s/metrics", cfg.MetricsAddress)
	}

	if err := l.Serve(ctx, pc); !errors.Is(err, raknet.ErrServerClosed) {
		return err
	}

	pterm.Success.Println("listener stopped")
	return nil
}

// Logs the messages of a connection until it closes.
func watch(conn *raknet.Connection) {
	conn.Subscribe(func(e raknet.ConnectionEvent) {
		switch e := e.(type) {
		case raknet.MessageEvent:
			pterm.Debug.Printfln("%s sent message 0x%02x (%d bytes)", conn.PeerAddr(), e.ID, len(e.Payload))
		case raknet.LatencyEvent:
			pterm.Debug.Printfln("%s latency %s", conn.PeerAddr(), e.Latency)
		}
	})
}
