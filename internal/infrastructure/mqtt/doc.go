// Package mqtt provides the access gateway's connection to the MQTT bus.
//
// The gateway only publishes:
//   - a retained online/offline status on graylogic/system/status, with a
//     Last Will so an unexpected disconnect is announced by the broker
//   - every committed remote API audit entry on graylogic/audit/wsapi
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.Audit("wsapi"), entry)
package mqtt
