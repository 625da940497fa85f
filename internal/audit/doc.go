// Package audit keeps the immutable trail of remote API calls.
//
// Every request handled by the gateway, successful or not, produces one
// WSAPICall row. The Recorder writes each row in its own short transaction,
// independent of whatever the request's handler committed or rolled back,
// and then fans the entry out on the MQTT bus.
package audit
