// Package exporter renders CAI snapshots in the Prometheus text exposition
// format, either to a node_exporter textfile or over HTTP at /metrics.
package exporter
