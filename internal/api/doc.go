// Package api serves the Thing over the Web Thing REST and WebSocket API.
//
// Routes (single-thing layout):
//
//	GET  /                   Thing description, or WebSocket upgrade
//	GET  /properties         all property values
//	GET  /properties/{name}  one property value
//	PUT  /properties/{name}  always 400: every property is read-only
//	GET  /actions, /events   always empty
//	GET  /health             sync loop status
//	GET  /metrics            Prometheus exposition
//
// WebSocket clients first receive a propertyStatus message with every value,
// then one propertyStatus message per change. The hub never blocks the sync
// loop: a client whose buffer is full misses messages.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
