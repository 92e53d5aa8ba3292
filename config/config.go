package config

import "time"

// Protocol constants - must match the reserved vocabulary in the wire format.
const (
	// Buffer sizes
	InboundBufferSize      = 64  // per-player inbound queue, sliding-window discard
	OutboundBufferSize     = 256 // per-player outbound queue, drop-newest discard
	LocalInboundBufferSize = 8   // server-injected events (disconnect notices, etc.)

	// Timing
	IdleTimeout        = 30 * time.Second // watchdog force-closes a silent connection
	WatchdogInterval   = 1 * time.Second  // how often the watchdog checks last-seen
	SyncActiveWindow   = 2000 * time.Millisecond // donor must have been seen within this window
	SyncRetryInterval  = 2000 * time.Millisecond // retry cadence, unused by the single-shot variant

	// Session bookkeeping
	MaxGameSessions = 4096 // defensive cap on concurrent sessions a dispatcher will track

	// Empty-session reconciliation sweep (see SPEC_FULL.md §6)
	SessionSweepInterval = 30 * time.Second
)

// ServerConfig holds the runtime-configurable server settings.
type ServerConfig struct {
	Host string

	TCPPort       int // line-delimited JSON relay
	WebSocketPort int // JSON text-frame relay, path /ws
	EchoPort      int // auxiliary liveness probe, not part of the core pipeline

	EnableCORS bool
}

// DefaultServerConfig returns the compiled-in defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "0.0.0.0",
		TCPPort:       9121,
		WebSocketPort: 9122,
		EchoPort:      9120,
		EnableCORS:    true,
	}
}
