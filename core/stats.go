package core

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/searchktools/fast-scgi/core/pools"
)

// counters are written by the event loop and may be read from any goroutine
type counters struct {
	accepted        atomic.Uint64
	rejected        atomic.Uint64
	active          atomic.Int64
	requests        atomic.Uint64
	completed       atomic.Uint64
	eofs            atomic.Uint64
	transportErrors atomic.Uint64
	protocolErrors  atomic.Uint64
	timeouts        atomic.Uint64
	handlerPanics   atomic.Uint64
	shutdowns       atomic.Uint64
}

func (c *counters) record(reason closeReason) {
	switch reason {
	case closeDone:
		c.completed.Add(1)
	case closeEOF:
		c.eofs.Add(1)
	case closeTransport:
		c.transportErrors.Add(1)
	case closeProtocol:
		c.protocolErrors.Add(1)
	case closeTimeout:
		c.timeouts.Add(1)
	case closePanic:
		c.handlerPanics.Add(1)
	case closeShutdown:
		c.shutdowns.Add(1)
	}
}

// Stats is a snapshot of engine counters.
// Every accepted connection ends up in exactly one of the teardown counters.
type Stats struct {
	Accepted        uint64              `json:"accepted"`
	Rejected        uint64              `json:"rejected"`
	Active          int64               `json:"active"`
	Requests        uint64              `json:"requests"`
	Completed       uint64              `json:"completed"`
	EOFs            uint64              `json:"eofs"`
	TransportErrors uint64              `json:"transport_errors"`
	ProtocolErrors  uint64              `json:"protocol_errors"`
	Timeouts        uint64              `json:"timeouts"`
	HandlerPanics   uint64              `json:"handler_panics"`
	Shutdowns       uint64              `json:"shutdowns"`
	ConnectionGets  uint64              `json:"connection_gets"`
	ConnectionPuts  uint64              `json:"connection_puts"`
	ReadBuffers     pools.BytePoolStats `json:"read_buffers"`
}

// Closed returns the number of connections torn down for any reason
func (s Stats) Closed() uint64 {
	return s.Completed + s.EOFs + s.TransportErrors + s.ProtocolErrors +
		s.Timeouts + s.HandlerPanics + s.Shutdowns
}

// Stats returns a snapshot of engine counters
func (e *Engine) Stats() Stats {
	gets, puts := e.connectionPool.Stats()

	return Stats{
		Accepted:        e.stats.accepted.Load(),
		Rejected:        e.stats.rejected.Load(),
		Active:          e.stats.active.Load(),
		Requests:        e.stats.requests.Load(),
		Completed:       e.stats.completed.Load(),
		EOFs:            e.stats.eofs.Load(),
		TransportErrors: e.stats.transportErrors.Load(),
		ProtocolErrors:  e.stats.protocolErrors.Load(),
		Timeouts:        e.stats.timeouts.Load(),
		HandlerPanics:   e.stats.handlerPanics.Load(),
		Shutdowns:       e.stats.shutdowns.Load(),
		ConnectionGets:  gets,
		ConnectionPuts:  puts,
		ReadBuffers:     e.bytePool.Stats(),
	}
}

// StatsJSON returns engine statistics as JSON string
func (e *Engine) StatsJSON() string {
	data, _ := json.MarshalIndent(e.Stats(), "", "  ")
	return string(data)
}

// StatsText returns engine statistics as human-readable text
func (e *Engine) StatsText() string {
	s := e.Stats()
	return fmt.Sprintf(`SCGI Server Statistics
======================

Connections:
  Accepted: %d
  Rejected: %d
  Active:   %d

Requests:
  Handled:   %d
  Completed: %d

Teardowns:
  EOF:              %d
  Transport errors: %d
  Protocol errors:  %d
  Idle timeouts:    %d
  Handler panics:   %d
  Shutdown:         %d
`,
		s.Accepted, s.Rejected, s.Active,
		s.Requests, s.Completed,
		s.EOFs, s.TransportErrors, s.ProtocolErrors, s.Timeouts, s.HandlerPanics, s.Shutdowns,
	)
}
