package api

import "github.com/steermux/steermux/server/internal/ingest"

// SteeringResponse is the payload for GET /api/v1/steering.
type SteeringResponse struct {
	Steering    float64            `json:"steering"`
	Sources     []string           `json:"sources"`
	PerSource   map[string]float64 `json:"per_source"`
	SourceCount int                `json:"source_count"`
	ComputedAt  string             `json:"computed_at"` // RFC3339
}

// SourceResponse is one entry in GET /api/v1/sources. Stale entries are
// included until they are evicted.
type SourceResponse struct {
	SourceID  string  `json:"source_id"`
	Steering  float64 `json:"steering"`
	Connected bool    `json:"connected"`
	Stale     bool    `json:"stale"`
	LastSeen  string  `json:"last_seen"` // RFC3339
}

// StatsResponse is the payload for GET /api/v1/stats.
type StatsResponse struct {
	ProducerConnections int             `json:"producer_connections"`
	ConsumerConnections int             `json:"consumer_connections"`
	SourcesLive         int             `json:"sources_live"`
	SourcesStale        int             `json:"sources_stale"`
	SamplesAccepted     uint64          `json:"samples_accepted"`
	SamplesRejected     uint64          `json:"samples_rejected"`
	Connections         []ingest.Record `json:"connections"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string  `json:"status"` // "ok" with live sources, else "idle"
	Steering    float64 `json:"steering"`
	SourcesLive int     `json:"sources_live"`
	Timestamp   string  `json:"timestamp"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
