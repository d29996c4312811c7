package healthrecord

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides observability for queries and conversions. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	QueryLatency    *prometheus.HistogramVec
	QueryOutcome    *prometheus.CounterVec
	RecordsReturned *prometheus.CounterVec
	RecordsDropped  *prometheus.CounterVec
	Authorization   *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthbridge_query_duration_seconds",
			Help:    "Duration of store queries including conversion, by kind",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),
		QueryOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_query_outcomes_total",
			Help: "Query outcomes by kind and result",
		}, []string{"kind", "result"}), // result: "ok", "unsupported_type", "failed", "unavailable"
		RecordsReturned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_records_returned_total",
			Help: "Converted records returned to callers, by kind",
		}, []string{"kind"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_records_dropped_total",
			Help: "Samples dropped because they could not be converted, by kind",
		}, []string{"kind"}),
		Authorization: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthbridge_authorization_requests_total",
			Help: "Authorization requests by result",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.QueryLatency, m.QueryOutcome, m.RecordsReturned, m.RecordsDropped, m.Authorization)
	}
	return m
}

// ObserveQuery records the duration and outcome of one query.
func (m *Metrics) ObserveQuery(kind Kind, result string, d time.Duration) {
	if m != nil {
		m.QueryLatency.WithLabelValues(string(kind)).Observe(d.Seconds())
		m.QueryOutcome.WithLabelValues(string(kind), result).Inc()
	}
}

// AddRecords records how many samples were converted and dropped.
func (m *Metrics) AddRecords(kind Kind, returned, dropped int) {
	if m != nil {
		m.RecordsReturned.WithLabelValues(string(kind)).Add(float64(returned))
		m.RecordsDropped.WithLabelValues(string(kind)).Add(float64(dropped))
	}
}

// IncAuthorization records an authorization result.
func (m *Metrics) IncAuthorization(result string) {
	if m != nil {
		m.Authorization.WithLabelValues(result).Inc()
	}
}
