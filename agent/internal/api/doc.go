// Package api implements the agent's HTTP status API.
//
// New returns an http.Handler that serves:
//
//	GET /api/v1/health           overall state, worst CAI, per-level counts
//	GET /api/v1/locations        latest snapshot per live location
//	GET /api/v1/locations/{id}   single location; 404 if unknown or stale
//	GET /api/v1/alerts           firing and recently resolved alerts
//	GET /api/v1/snapshot         all live locations plus generated_at
//	GET /metrics                 Prometheus text exposition
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Stale store entries are excluded everywhere.
package api
