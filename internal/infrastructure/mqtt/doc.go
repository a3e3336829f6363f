// Package mqtt provides the MQTT client used by meterthing.
//
// The broker carries two flows:
//
//	meter decoder → meterthing/readings/{slug} → meterthing
//	meterthing    → meterthing/{thing,state,health}/{slug}... → dashboards, home automation
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retention
//   - Subscriptions that are restored after a reconnect
//   - Last Will and Testament on meterthing/system/status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.PropertyState("smart-meter-1", "1.0.1.8.0.255")
//	err = client.Publish(topic, payload, 1, true)
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on the
// same host.
package mqtt
