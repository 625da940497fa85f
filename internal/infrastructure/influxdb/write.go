package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	measurementRequests    = "wsapi_requests"
	measurementConnections = "wsapi_connections"
)

// WriteRequestMetric records the outcome of one remote API request.
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteRequestMetric("user_get", "SUCCESS", true, 3*time.Millisecond)
func (c *Client) WriteRequestMetric(method, status string, authenticated bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementRequests,
		map[string]string{
			"method":        method,
			"status":        status,
			"authenticated": boolTag(authenticated),
		},
		map[string]any{
			"duration_ms": float64(duration.Microseconds()) / 1000,
			"count":       1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionMetric records a connection open or close event along with
// the number of sessions alive afterwards.
func (c *Client) WriteConnectionMetric(event string, active int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementConnections,
		map[string]string{"event": event},
		map[string]any{"active": active},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
