package raknet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a Listener and its connections.
type Metrics struct {
	Sessions prometheus.Gauge

	DatagramsReceived prometheus.Counter
	DatagramsSent     prometheus.Counter
	BytesReceived     prometheus.Counter
	BytesSent         prometheus.Counter

	Retransmits   prometheus.Counter
	AcksReceived  prometheus.Counter
	NacksReceived prometheus.Counter

	// Packets dropped without affecting any connection, by reason.
	Dropped *prometheus.CounterVec

	// Closed connections, by disconnect reason.
	Disconnects *prometheus.CounterVec

	// Refused handshakes, by reason.
	Rejected *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "raknet",
			Name:      "sessions",
			Help:      "Number of registered connections",
		}),

		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "datagrams_received_total",
			Help:      "Total number of packets ingested",
		}),

		DatagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "datagrams_sent_total",
			Help:      "Total number of packets handed to the transport",
		}),

		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "received_bytes_total",
			Help:      "Total number of bytes ingested",
		}),

		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "sent_bytes_total",
			Help:      "Total number of bytes handed to the transport",
		}),

		Retransmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "retransmits_total",
			Help:      "Total number of datagrams sent again after a NACK or a timeout",
		}),

		AcksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "acks_received_total",
			Help:      "Total number of datagram sequence numbers acknowledged by peers",
		}),

		NacksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "nacks_received_total",
			Help:      "Total number of datagram sequence numbers reported missing by peers",
		}),

		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "dropped_packets_total",
			Help:      "Total number of packets dropped, by reason",
		}, []string{"reason"}),

		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "disconnects_total",
			Help:      "Total number of closed connections, by reason",
		}, []string{"reason"}),

		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raknet",
			Name:      "rejected_handshakes_total",
			Help:      "Total number of refused handshakes, by reason",
		}, []string{"reason"}),
	}
}
