// Package wsapi is the request-processing core of the remote API gateway.
//
// Each WebSocket connection owns one APISession. Every inbound frame is
// parsed into a ClientMessage, resolved against the frozen Registry,
// authorized, executed inside a fresh database.UnitOfWork, mapped onto a
// status code by apierr, audited, and answered with exactly one
// ServerMessage carrying the request's correlation id.
//
// Two kinds of handler share one dispatch path:
//
//   - session methods (get_version, create_auth_token, ...) are bound to
//     the APISession and gated by a single per-method capability check;
//   - resource methods (user_get, group_put, get_logs, ...) are built per
//     request by a ResourceFactory and declare the fine-grained
//     permissions their verb and payload require.
//
// # Concurrency
//
// A connection's frames are handled one after another, so responses keep
// request order. Across connections, execution is bounded by a weighted
// semaphore; with a single slot the gateway behaves as one control loop.
// Audit writes are serialised by the audit.Recorder.
package wsapi
