package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/steermux/steermux/server/internal/ingest"
	"github.com/steermux/steermux/server/internal/merge"
	"github.com/steermux/steermux/server/internal/metrics"
	"github.com/steermux/steermux/server/internal/registry"
)

// Producers reports on open producer connections. Implemented by
// ingest.Manager.
type Producers interface {
	Count() int
	Records() []ingest.Record
}

// Consumers reports on connected consumer clients. Implemented by ws.Hub.
type Consumers interface {
	Count() int
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	reg       *registry.Registry
	weights   *merge.Table
	producers Producers
	consumers Consumers
	collector *metrics.Collector
	mux       *http.ServeMux
}

// New creates a Handler wired to the given components and registers all routes.
func New(reg *registry.Registry, weights *merge.Table, producers Producers, consumers Consumers, collector *metrics.Collector) http.Handler {
	h := &Handler{
		reg:       reg,
		weights:   weights,
		producers: producers,
		consumers: consumers,
		collector: collector,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/v1/steering", h.steering)
	h.mux.HandleFunc("/api/v1/sources", h.sources)
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.HandleFunc("/api/v1/health", h.health)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// steering returns GET /api/v1/steering — the merged value computed fresh
// from the live snapshot.
func (h *Handler) steering(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res := merge.Merge(h.reg.Snapshot(), h.weights.Current(), time.Now())
	jsonResp(w, http.StatusOK, SteeringResponse{
		Steering:    res.Value,
		Sources:     res.Sources,
		PerSource:   res.PerSource,
		SourceCount: len(res.Sources),
		ComputedAt:  res.ComputedAt.UTC().Format(time.RFC3339Nano),
	})
}

// sources returns GET /api/v1/sources — every known source including stale
// ones awaiting eviction.
func (h *Handler) sources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	entries := h.reg.All()
	out := make([]SourceResponse, 0, len(entries))
	for _, s := range entries {
		out = append(out, SourceResponse{
			SourceID:  s.ID,
			Steering:  s.Value,
			Connected: s.Connected,
			Stale:     now.Sub(s.LastSeen) > h.reg.StaleAfter(),
			LastSeen:  s.LastSeen.UTC().Format(time.RFC3339Nano),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// stats returns GET /api/v1/stats — connection and sample counters.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	live, stale := h.reg.Stats()
	jsonResp(w, http.StatusOK, StatsResponse{
		ProducerConnections: h.producers.Count(),
		ConsumerConnections: h.consumers.Count(),
		SourcesLive:         live,
		SourcesStale:        stale,
		SamplesAccepted:     h.collector.Accepted(),
		SamplesRejected:     h.collector.Rejected(),
		Connections:         h.producers.Records(),
	})
}

// health returns GET /api/v1/health — a simple liveness indicator. "ok" means
// at least one live source is contributing; "idle" means the merged value is
// the fail-safe neutral.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res := merge.Merge(h.reg.Snapshot(), h.weights.Current(), time.Now())
	status := "idle"
	if len(res.Sources) > 0 {
		status = "ok"
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      status,
		Steering:    res.Value,
		SourcesLive: len(res.Sources),
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
