// Package h3config holds the server's tunable knobs (spec §6) and logs
// them the way the teacher logs derived settings: human-readable sizes via
// github.com/docker/go-units rather than raw byte counts.
package h3config

import (
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// CongestionControl selects the QUIC congestion controller.
type CongestionControl int

const (
	CongestionControlCUBIC CongestionControl = iota
	CongestionControlBBR
)

func (c CongestionControl) String() string {
	if c == CongestionControlBBR {
		return "BBR"
	}
	return "CUBIC"
}

// ResumptionLevel controls TLS session resumption and 0-RTT policy.
type ResumptionLevel int

const (
	// ResumptionFull enables session-ticket resumption and 0-RTT.
	ResumptionFull ResumptionLevel = iota
	// ResumptionTicketOnly enables resumption without 0-RTT.
	ResumptionTicketOnly
	// ResumptionDisabled issues no session tickets.
	ResumptionDisabled
)

// ServerConfig is every knob the lifecycle controller and transport
// adapter need to start listening.
type ServerConfig struct {
	// Identity and wire protocol.
	CertPath string
	KeyPath  string
	ALPN     string

	// Admission control. MaxConnections is enforced by the engine's
	// dispatcher; MaxConcurrentRequests and MaxUnidirectionalStreams are
	// handed to the QUIC transport as per-connection stream limits.
	MaxConnections         int
	MaxConcurrentRequests  int
	MaxUnidirectionalStreams int

	// Timeouts.
	IdleTimeoutMS          int
	HandshakeIdleTimeoutMS int
	DisconnectTimeoutMS    int
	KeepAliveIntervalMS    int

	// Flow control and congestion tuning. cmd/h3d passes only
	// StreamReceiveWindow and ConnectionFlowControlWindow to the QUIC
	// transport; the other fields here are carried in the configuration
	// but not applied to the transport.
	StreamReceiveWindow           uint64
	ConnectionFlowControlWindow   uint64
	InitialRTTMS                  int
	InitialWindowPackets          int
	MaxAckDelayMS                 int
	PacingEnabled                 bool
	SendBufferingEnabled          bool
	MigrationEnabled              bool
	CongestionControlAlgorithm    CongestionControl
	ServerResumptionLevel         ResumptionLevel

	// Worker pool sizing (spec §4.9).
	WorkerCount int
	QueueSize   int // 0 means "default to 4 * WorkerCount"
}

// Default returns the spec §6 default configuration. Callers still must
// set CertPath/KeyPath before starting a server; there is no production
// default for TLS credentials.
func Default() ServerConfig {
	return ServerConfig{
		ALPN:                        "h3",
		MaxConnections:              100,
		MaxConcurrentRequests:       100,
		MaxUnidirectionalStreams:    10,
		IdleTimeoutMS:               10_000,
		HandshakeIdleTimeoutMS:      10_000,
		DisconnectTimeoutMS:         30_000,
		KeepAliveIntervalMS:         0,
		StreamReceiveWindow:         6 << 20,
		ConnectionFlowControlWindow: 15 << 20,
		InitialRTTMS:                100,
		InitialWindowPackets:        10,
		MaxAckDelayMS:               25,
		PacingEnabled:               true,
		SendBufferingEnabled:        true,
		MigrationEnabled:            false,
		CongestionControlAlgorithm:  CongestionControlCUBIC,
		ServerResumptionLevel:       ResumptionFull,
		WorkerCount:                 5,
	}
}

// EffectiveQueueSize returns QueueSize, defaulting to 4*WorkerCount per
// spec §4.9.
func (c ServerConfig) EffectiveQueueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return 4 * c.WorkerCount
}

// LogFields renders the configuration the way a startup banner should:
// byte-count knobs in human units, everything else as-is.
func (c ServerConfig) LogFields() logrus.Fields {
	return logrus.Fields{
		"alpn":                   c.ALPN,
		"max_connections":        c.MaxConnections,
		"max_concurrent_requests": c.MaxConcurrentRequests,
		"worker_count":           c.WorkerCount,
		"queue_size":             c.EffectiveQueueSize(),
		"idle_timeout":           c.IdleTimeoutMS,
		"stream_receive_window":  units.BytesSize(float64(c.StreamReceiveWindow)),
		"connection_flow_window": units.BytesSize(float64(c.ConnectionFlowControlWindow)),
		"congestion_control":     c.CongestionControlAlgorithm.String(),
	}
}
