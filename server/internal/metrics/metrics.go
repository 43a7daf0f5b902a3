package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Collector owns the server's sample counters. It is safe for concurrent use
// from every connection's receive loop.
type Collector struct {
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector { return &Collector{} }

// SampleAccepted records one valid steering sample applied to the registry.
func (c *Collector) SampleAccepted() { c.accepted.Add(1) }

// SampleRejected records one frame dropped by validation.
func (c *Collector) SampleRejected() { c.rejected.Add(1) }

// Accepted returns the total number of accepted samples.
func (c *Collector) Accepted() uint64 { return c.accepted.Load() }

// Rejected returns the total number of rejected frames.
func (c *Collector) Rejected() uint64 { return c.rejected.Load() }

// GaugeFunc returns the current value of one gauge.
type GaugeFunc func() float64

type namedGauge struct {
	name string
	help string
	fn   GaugeFunc
}

// Handler serves GET /metrics. Gauges registered via Gauge are evaluated on
// every scrape.
type Handler struct {
	c *Collector

	mu     sync.RWMutex
	gauges []namedGauge
}

// NewHandler creates a Handler reporting the given collector's counters.
func NewHandler(c *Collector) *Handler {
	return &Handler{c: c}
}

// Gauge registers a named gauge callback. Must be called during wiring,
// before the handler starts serving.
func (h *Handler) Gauge(name, help string, fn GaugeFunc) {
	h.mu.Lock()
	h.gauges = append(h.gauges, namedGauge{name: name, help: help, fn: fn})
	h.mu.Unlock()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)

	families := []*dto.MetricFamily{
		counterFamily("steermux_samples_accepted_total",
			"Valid steering samples applied to the source registry.",
			float64(h.c.Accepted())),
		counterFamily("steermux_samples_rejected_total",
			"Inbound frames dropped by validation.",
			float64(h.c.Rejected())),
	}

	h.mu.RLock()
	for _, g := range h.gauges {
		families = append(families, gaugeFamily(g.name, g.help, g.fn()))
	}
	h.mu.RUnlock()

	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

func gaugeFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: &v}}},
	}
}

func counterFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: &v}}},
	}
}
