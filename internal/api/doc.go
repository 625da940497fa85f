// Package api implements the network edge of the Gray Logic access gateway.
//
// This package provides:
//   - The WebSocket endpoint carrying the remote API (one session per connection)
//   - A connection hub that tracks live clients and closes them on shutdown
//   - Operational HTTP endpoints: /api/v1/health, /api/v1/status and /metrics
//   - Middleware stack (request ID, logging, recovery)
//   - TLS support for production deployments
//
// # Architecture
//
// Every WebSocket connection is a wsapi.Conn. Inbound text frames are handed
// to wsapi.Server.OnMessage one at a time, in arrival order, from the
// connection's read loop. Responses are queued on a bounded per-client
// buffer and written by a dedicated write loop, which also sends keep-alive
// pings. The protocol itself (envelopes, sessions, permissions, audit) lives
// in package wsapi; this package only moves frames.
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional. When either is down the health endpoint
// reports "degraded" but the remote API keeps serving requests. Only a
// failing database makes the gateway unhealthy.
package api
