// Package store holds the latest CAI snapshot per location in memory with
// TTL eviction. It backs the status API and the metrics exposition in watch
// mode.
package store
