// Package logging is the gateway's structured logger, a thin layer over
// log/slog.
//
// Every record carries service and version attributes. The level comes from
// config and can be changed at runtime with SetLevel; children created with
// With or Request share it.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	wsLog := logger.With("component", "wsapi")
//	wsLog.Request(connID, msg.ID, msg.Method).Info("user created", "user_id", id)
//
// Never log passwords or signed tokens. Tokens are identified by their
// stored id.
package logging
