package api

import "github.com/caiwatch/caiwatch/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string  `json:"state"` // worst level across locations, or unknown
	WorstCAI      float64 `json:"worst_cai"`
	WorstLocation string  `json:"worst_location,omitempty"`
	LocationCount int     `json:"location_count"`
	GoodCount     int     `json:"good_count"`
	FairCount     int     `json:"fair_count"`
	NormCount     int     `json:"norm_count"`
	PoorCount     int     `json:"poor_count"`
	UnknownCount  int     `json:"unknown_count"`
	AlertCount    int     `json:"alert_count"`
}

// LocationResponse is one entry in GET /api/v1/locations or
// GET /api/v1/locations/{id}.
type LocationResponse struct {
	types.Snapshot
	Advice   []Advice `json:"advice"`
	LastSeen string   `json:"last_seen"` // RFC3339
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every stream message.
type SnapshotResponse struct {
	Locations   []LocationResponse `json:"locations"`
	GeneratedAt string             `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
