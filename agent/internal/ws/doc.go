// Package ws streams location snapshots to WebSocket clients.
//
// A client receives the current snapshot on connect, again after every
// refresh cycle (Broadcast), and on a keep-alive interval in between.
// Connecting to /ws/stream?location=home,office limits every message to
// those locations; the parameter may also be repeated.
// Messages have the form
//
//	{"event": "snapshot", "data": { /* GET /api/v1/snapshot */ }}
//
// The upgrader accepts all origins; restrict them at the reverse proxy.
package ws
