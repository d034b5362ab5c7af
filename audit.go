package goGate

import (
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGate/internal/audit"
)

// AuditEvent is one security-relevant record. It never carries OTPs, reset
// tokens, bearer tokens or passwords.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = audit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewLogSink returns a sink writing each event through logger.
func NewLogSink(logger zerolog.Logger) AuditSink {
	return audit.NewLogSink(logger)
}
