// Package bridge runs the sync loop between a meter reading source and the
// Web Thing model, and mirrors the Thing to MQTT.
//
// # Lifecycle
//
//	loop := bridge.NewLoop(bridge.Options{Source: adapter, Description: desc})
//	th, err := loop.Initialize(ctx) // blocks for the first reading
//	th.Subscribe(metrics.Observer())
//	err = loop.Run(ctx)             // returns on fatal error or stream end
//
// Every error Run returns is fatal for the device: there are no retries and
// no partial service. A cancelled context is a clean shutdown and yields nil.
//
// # MQTT Topics
//
//	meterthing/thing/{slug}             retained Thing description
//	meterthing/state/{slug}/{property}  retained StateMessage per property
//	meterthing/health/{slug}            retained HealthMessage
package bridge
