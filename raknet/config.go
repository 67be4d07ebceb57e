package raknet

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/DaylightNebula/RakNet/internal/protocol"
)

// The smallest MTU that still leaves room for one byte of a fragmented frame.
const smallestMTU = protocol.UDP_HEADER_SIZE + protocol.DATAGRAM_HEADER_SIZE +
	protocol.FRAME_BODY_SIZE + protocol.FRAME_ADDITIONAL_SIZE + 1

// Config holds the settings of a Listener. The zero value is not usable, start from DefaultConfig.
type Config struct {
	// Address is the UDP address that cmd/raknetd binds. The listener itself never opens sockets.
	Address string `yaml:"address"`

	// MetricsAddress is the HTTP address serving /metrics and /sessions. Empty disables it.
	MetricsAddress string `yaml:"metrics_address"`

	GUID       int64  `yaml:"guid"`
	Descriptor string `yaml:"descriptor"`

	ProtocolVersion uint8 `yaml:"protocol_version"`
	MinMTU          int   `yaml:"min_mtu"`
	MaxMTU          int   `yaml:"max_mtu"`

	// A negative value accepts any number of connections.
	MaxConnections int `yaml:"max_connections"`

	TickInterval time.Duration `yaml:"tick_interval"`

	// A connection that receives nothing for this long is closed with ReasonTimeout.
	Timeout      time.Duration `yaml:"timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`

	// Bounds of the retransmission timeout, which otherwise follows the measured round trip time.
	RetransmitTimeout    time.Duration `yaml:"retransmit_timeout"`
	MaxRetransmitTimeout time.Duration `yaml:"max_retransmit_timeout"`

	// Number of times a reliable datagram is resent before the peer is considered unresponsive.
	MaxRetries int `yaml:"max_retries"`

	// Incomplete fragmented messages older than this are discarded.
	ReassemblyTimeout time.Duration `yaml:"reassembly_timeout"`
	MaxFragments      uint32        `yaml:"max_fragments"`

	// Path of the SQLite block list. Empty disables it.
	BlockListPath string `yaml:"block_list_path"`
}

// Returns the default configuration with a random GUID.
func DefaultConfig() Config {
	return Config{
		Address:              "0.0.0.0:19132",
		GUID:                 rand.Int63(),
		Descriptor:           "MCPE;Dedicated Server;390;1.14.60;0;10;0;Bedrock level;Survival;1;19132;19133;",
		ProtocolVersion:      protocol.PROTOCOL_VERSION,
		MinMTU:               protocol.MIN_MTU_SIZE,
		MaxMTU:               protocol.MAX_MTU_SIZE,
		MaxConnections:       -1,
		TickInterval:         50 * time.Millisecond,
		Timeout:              10 * time.Second,
		PingInterval:         2500 * time.Millisecond,
		RetransmitTimeout:    500 * time.Millisecond,
		MaxRetransmitTimeout: 5 * time.Second,
		MaxRetries:           8,
		ReassemblyTimeout:    30 * time.Second,
		MaxFragments:         protocol.MAX_FRAGMENT_COUNT,
	}
}

// LoadConfig reads a YAML file over the default configuration.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.MinMTU < smallestMTU || c.MinMTU > c.MaxMTU:
		return fmt.Errorf("min_mtu %d must be within [%d, max_mtu]", c.MinMTU, smallestMTU)
	case c.MaxMTU > protocol.MAX_MTU_SIZE:
		return fmt.Errorf("max_mtu %d exceeds %d", c.MaxMTU, protocol.MAX_MTU_SIZE)
	case c.TickInterval <= 0:
		return errors.New("tick_interval must be positive")
	case c.Timeout <= c.TickInterval:
		return errors.New("timeout must be longer than tick_interval")
	case c.PingInterval <= 0:
		return errors.New("ping_interval must be positive")
	case c.RetransmitTimeout <= 0 || c.MaxRetransmitTimeout < c.RetransmitTimeout:
		return errors.New("retransmit_timeout must be positive and at most max_retransmit_timeout")
	case c.MaxRetries < 0:
		return errors.New("max_retries must not be negative")
	case c.ReassemblyTimeout <= 0:
		return errors.New("reassembly_timeout must be positive")
	case c.MaxFragments == 0:
		return errors.New("max_fragments must be positive")
	}

	return nil
}
