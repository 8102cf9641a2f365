// Package mqtt provides MQTT client connectivity for Gray Logic Auth.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Publishing session events with QoS guarantees
//   - The revoke command subscription, restored after reconnects
//   - Last Will and Testament (LWT) on {prefix}/status for offline detection
//
// The broker is optional: when mqtt.enabled is false the service runs
// without it and session events only reach the other sinks.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Event payloads carry account ids and emails, never secrets or tokens
//   - Anyone who can publish on the revoke topic can end sessions, so the
//     broker ACL must restrict it
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().SessionEvent("login")
//	err = client.PublishEvent(topic, payload)
package mqtt
