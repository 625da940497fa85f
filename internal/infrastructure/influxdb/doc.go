// Package influxdb records remote API request telemetry in InfluxDB.
//
// Each handled request produces one wsapi_requests point tagged with the
// method, the final status and whether the session was authenticated.
// Connection churn is written as wsapi_connections points.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteRequestMetric("user_get", "SUCCESS", true, elapsed)
//
// Writes are non-blocking and batched per batch_size/flush_interval.
// Asynchronous write failures are delivered to the SetOnError callback.
package influxdb
