// Package types defines shared Go types passed between the agent's compute
// engine and its outputs (store, alerts, HTTP API, metrics exporter).
// These are the canonical JSON representations of an air-quality snapshot.
package types
