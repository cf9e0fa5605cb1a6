package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports livestore metrics as Prometheus collectors.
type Prometheus struct {
	mutations *prometheus.CounterVec
	entities  *prometheus.CounterVec
	emissions *prometheus.CounterVec
	payload   *prometheus.HistogramVec
	viewSize  *prometheus.GaugeVec
	joinState *prometheus.GaugeVec
	panics    *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestore_mutations_total",
			Help: "Applied mutation batches",
		}, []string{"source", "op"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestore_mutated_entities_total",
			Help: "Entities or join entries touched by mutation batches",
		}, []string{"source", "op"}),
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestore_emissions_total",
			Help: "Notifications delivered to subscribers",
		}, []string{"source", "channel"}),
		payload: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livestore_emission_size",
			Help:    "Number of ids carried by each notification",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"source", "channel"}),
		viewSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livestore_view_size",
			Help: "Current number of entities in a view",
		}, []string{"view"}),
		joinState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livestore_join_entries",
			Help: "Join entries by state",
		}, []string{"join", "state"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestore_subscriber_panics_total",
			Help: "Recovered subscriber panics",
		}, []string{"source"}),
	}
	for _, c := range []prometheus.Collector{
		p.mutations, p.entities, p.emissions, p.payload, p.viewSize, p.joinState, p.panics,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// RecordMutation implements Collector.
func (p *Prometheus) RecordMutation(source, op string, count int) {
	p.mutations.WithLabelValues(source, op).Inc()
	p.entities.WithLabelValues(source, op).Add(float64(count))
}

// RecordEmission implements Collector.
func (p *Prometheus) RecordEmission(source, channel string, size int) {
	p.emissions.WithLabelValues(source, channel).Inc()
	p.payload.WithLabelValues(source, channel).Observe(float64(size))
}

// RecordViewSize implements Collector.
func (p *Prometheus) RecordViewSize(view string, size int) {
	p.viewSize.WithLabelValues(view).Set(float64(size))
}

// RecordJoinState implements Collector.
func (p *Prometheus) RecordJoinState(join string, complete, partial int) {
	p.joinState.WithLabelValues(join, "complete").Set(float64(complete))
	p.joinState.WithLabelValues(join, "partial").Set(float64(partial))
}

// RecordSubscriberPanic implements Collector.
func (p *Prometheus) RecordSubscriberPanic(source string) {
	p.panics.WithLabelValues(source).Inc()
}
