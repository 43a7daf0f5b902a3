package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/steermux/steermux/server/internal/ingest"
	"github.com/steermux/steermux/server/internal/merge"
	"github.com/steermux/steermux/server/internal/metrics"
	"github.com/steermux/steermux/server/internal/registry"
)

type fakeProducers struct {
	count   int
	records []ingest.Record
}

func (f *fakeProducers) Count() int               { return f.count }
func (f *fakeProducers) Records() []ingest.Record { return f.records }

type fakeConsumers struct{ count int }

func (f *fakeConsumers) Count() int { return f.count }

func newTestHandler(reg *registry.Registry, w merge.Weights, p Producers, c Consumers) http.Handler {
	if p == nil {
		p = &fakeProducers{}
	}
	if c == nil {
		c = &fakeConsumers{}
	}
	return New(reg, merge.NewTable(w), p, c, metrics.NewCollector())
}

func get(t *testing.T, h http.Handler, path string, out interface{}) *http.Response {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func TestSteering_WeightedMerge(t *testing.T) {
	reg := registry.New(2*time.Second, 30*time.Second)
	reg.Upsert("webcam", 0.2)
	reg.Upsert("phone", -0.4)

	h := newTestHandler(reg, merge.Weights{"webcam": 0.6, "phone": 0.4}, nil, nil)

	var resp SteeringResponse
	get(t, h, "/api/v1/steering", &resp)

	if resp.Steering < -0.0401 || resp.Steering > -0.0399 {
		t.Errorf("steering: got %v, want -0.04", resp.Steering)
	}
	if resp.SourceCount != 2 {
		t.Errorf("source_count: got %d, want 2", resp.SourceCount)
	}
	if resp.PerSource["webcam"] != 0.2 || resp.PerSource["phone"] != -0.4 {
		t.Errorf("per_source: got %v", resp.PerSource)
	}
}

func TestSteering_EmptyRegistry_Neutral(t *testing.T) {
	reg := registry.New(2*time.Second, 30*time.Second)
	h := newTestHandler(reg, nil, nil, nil)

	var resp SteeringResponse
	get(t, h, "/api/v1/steering", &resp)

	if resp.Steering != 0.0 {
		t.Errorf("steering: got %v, want 0.0", resp.Steering)
	}
	if resp.SourceCount != 0 {
		t.Errorf("source_count: got %d, want 0", resp.SourceCount)
	}
}

func TestSteering_NeverCached(t *testing.T) {
	reg := registry.New(2*time.Second, 30*time.Second)
	reg.Upsert("webcam", 0.5)
	h := newTestHandler(reg, nil, nil, nil)

	var first SteeringResponse
	get(t, h, "/api/v1/steering", &first)
	if first.Steering != 0.5 {
		t.Fatalf("first: got %v, want 0.5", first.Steering)
	}

	reg.Upsert("webcam", -0.5)
	var second SteeringResponse
	get(t, h, "/api/v1/steering", &second)
	if second.Steering != -0.5 {
		t.Errorf("second: got %v, want -0.5 (must recompute per request)", second.Steering)
	}
}

func TestSources_IncludesStaleWithFlag(t *testing.T) {
	reg := registry.New(50*time.Millisecond, 30*time.Second)
	reg.Upsert("old", 0.9)
	time.Sleep(80 * time.Millisecond)
	reg.Upsert("new", 0.1)

	h := newTestHandler(reg, nil, nil, nil)

	var resp []SourceResponse
	get(t, h, "/api/v1/sources", &resp)

	if len(resp) != 2 {
		t.Fatalf("sources: got %d, want 2", len(resp))
	}
	byID := map[string]SourceResponse{}
	for _, s := range resp {
		byID[s.SourceID] = s
	}
	if !byID["old"].Stale {
		t.Error("old: want stale=true")
	}
	if byID["new"].Stale {
		t.Error("new: want stale=false")
	}
}

func TestStats(t *testing.T) {
	reg := registry.New(2*time.Second, 30*time.Second)
	reg.Upsert("webcam", 0.1)

	producers := &fakeProducers{
		count: 2,
		records: []ingest.Record{
			{ID: "conn-1", SourceID: "webcam", OpenedAt: time.Now()},
			{ID: "conn-2", OpenedAt: time.Now()},
		},
	}
	h := newTestHandler(reg, nil, producers, &fakeConsumers{count: 1})

	var resp StatsResponse
	get(t, h, "/api/v1/stats", &resp)

	if resp.ProducerConnections != 2 {
		t.Errorf("producer_connections: got %d, want 2", resp.ProducerConnections)
	}
	if resp.ConsumerConnections != 1 {
		t.Errorf("consumer_connections: got %d, want 1", resp.ConsumerConnections)
	}
	if resp.SourcesLive != 1 || resp.SourcesStale != 0 {
		t.Errorf("sources: got live=%d stale=%d, want 1/0", resp.SourcesLive, resp.SourcesStale)
	}
	if len(resp.Connections) != 2 {
		t.Errorf("connections: got %d, want 2", len(resp.Connections))
	}
}

func TestHealth_OkWithLiveSource(t *testing.T) {
	reg := registry.New(2*time.Second, 30*time.Second)
	reg.Upsert("phone", -0.2)
	h := newTestHandler(reg, nil, nil, nil)

	var resp HealthResponse
	get(t, h, "/api/v1/health", &resp)

	if resp.Status != "ok" {
		t.Errorf("status: got %q, want ok", resp.Status)
	}
	if resp.Steering != -0.2 {
		t.Errorf("steering: got %v, want -0.2", resp.Steering)
	}
}

func TestHealth_IdleWithoutSources(t *testing.T) {
	h := newTestHandler(registry.New(2*time.Second, 30*time.Second), nil, nil, nil)

	var resp HealthResponse
	get(t, h, "/api/v1/health", &resp)

	if resp.Status != "idle" {
		t.Errorf("status: got %q, want idle", resp.Status)
	}
	if resp.Steering != 0.0 {
		t.Errorf("steering: got %v, want fail-safe 0.0", resp.Steering)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(registry.New(2*time.Second, 30*time.Second), nil, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, path := range []string{"/api/v1/steering", "/api/v1/sources", "/api/v1/stats", "/api/v1/health"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
	}
}
