package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caiwatch/caiwatch/agent/internal/alerts"
	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/exporter"
	"github.com/caiwatch/caiwatch/agent/internal/store"
	"github.com/caiwatch/caiwatch/pkg/types"
)

// Handler serves the status API from the snapshot store and alert engine.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine // nil disables /api/v1/alerts content
	now    func() time.Time
}

// New creates the router. al may be nil when no alert rules are configured.
func New(st *store.Store, al *alerts.Engine) http.Handler {
	h := &Handler{store: st, alerts: al, now: time.Now}
	return h.routes()
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/locations", h.listLocations)
		r.Get("/locations/{id}", h.getLocation)
		r.Get("/alerts", h.listAlerts)
		r.Get("/snapshot", h.snapshot)
	})
	r.Method(http.MethodGet, "/metrics", exporter.Handler(h.store.Snapshots))
	return r
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	resp := HealthResponse{LocationCount: len(entries), State: "unknown", WorstCAI: -1}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	worstLevel := -1
	for _, e := range entries {
		s := e.Snapshot
		switch s.State {
		case compute.LevelGood.String():
			resp.GoodCount++
		case compute.LevelFair.String():
			resp.FairCount++
		case compute.LevelNorm.String():
			resp.NormCount++
		case compute.LevelPoor.String():
			resp.PoorCount++
		default:
			resp.UnknownCount++
			continue
		}
		if s.CAI > resp.WorstCAI {
			resp.WorstCAI = s.CAI
			resp.WorstLocation = s.LocationID
		}
		if s.Level > worstLevel {
			worstLevel = s.Level
		}
	}
	if worstLevel >= 0 {
		resp.State = compute.Level(worstLevel).String()
	}
	if resp.WorstCAI < 0 {
		resp.WorstCAI = 0
	}
	jsonResp(w, http.StatusOK, resp)
}

// listLocations returns GET /api/v1/locations.
func (h *Handler) listLocations(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	out := make([]LocationResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLocationResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getLocation returns GET /api/v1/locations/{id}.
func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.store.Get(id)
	if !ok || h.now().Sub(e.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "location not found")
		return
	}
	jsonResp(w, http.StatusOK, toLocationResponse(e))
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot: every live location plus
// generated_at.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot collects all live locations from st.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	out := SnapshotResponse{
		Locations:   make([]LocationResponse, 0, len(entries)),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, e := range entries {
		out.Locations = append(out.Locations, toLocationResponse(e))
	}
	return out
}

func toLocationResponse(e *store.Entry) LocationResponse {
	snap := *e.Snapshot
	if snap.SubIndices == nil {
		snap.SubIndices = []types.SubIndex{}
	}
	return LocationResponse{
		Snapshot: snap,
		Advice:   computeAdvice(e.Snapshot),
		LastSeen: e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
