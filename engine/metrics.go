// Metrics is the Prometheus-backed counters/gauges named in SPEC_FULL.md's
// "Metrics surface": queue depth, running-sequence count, free block
// count, preemption count, prefix-cache hit rate, tokens/sec, and one
// latency histogram for each whole Sampler.Sample call. It replaces the teacher's plain
// Metrics.Print() (sim/metrics.go) with the corpus's actual choice for a
// long-running server process, github.com/prometheus/client_golang.
package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/gauge the engine updates during its step
// loop. Registered once by the serve command (cmd/serve.go); this package
// only touches the field values, never an exporter transport — exposing
// them over HTTP is protocol-layer, out of scope here (spec.md §1).
type Metrics struct {
	QueueDepth          prometheus.Gauge
	RunningSeqs         prometheus.Gauge
	FreeBlocks          prometheus.Gauge
	Preemptions         prometheus.Counter
	Admissions          prometheus.Counter
	PrefixCacheHits     prometheus.Counter
	PrefixCacheMisses   prometheus.Counter
	TokensGenerated     prometheus.Counter
	DraftTokensProposed prometheus.Counter
	DraftTokensAccepted prometheus.Counter
	StepDuration        prometheus.Histogram
	SamplerDuration     prometheus.Histogram
	SequenceErrors      *prometheus.CounterVec
}

// NewMetrics constructs Metrics with the inferno_engine_ namespace. Callers
// register the returned value's Collect() output (via Collectors()) with
// whatever prometheus.Registerer the process uses.
func NewMetrics() *Metrics {
	return &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "inferno_engine", Name: "queue_depth",
			Help: "Number of Waiting sequences.",
		}),
		RunningSeqs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "inferno_engine", Name: "running_sequences",
			Help: "Number of Running sequences.",
		}),
		FreeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "inferno_engine", Name: "free_blocks",
			Help: "Free KV blocks in the paged store (free rows in contiguous mode).",
		}),
		Preemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "preemptions_total",
			Help: "Number of preemption events.",
		}),
		Admissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "admissions_total",
			Help: "Number of prefills admitted.",
		}),
		PrefixCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "prefix_cache_hits_total",
			Help: "PrefixCache lookups that matched at least one block.",
		}),
		PrefixCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "prefix_cache_misses_total",
			Help: "PrefixCache lookups that matched nothing.",
		}),
		TokensGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "tokens_generated_total",
			Help: "Total sampled tokens across all sequences.",
		}),
		DraftTokensProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "draft_tokens_proposed_total",
			Help: "Draft-pipeline tokens proposed for speculative verification.",
		}),
		DraftTokensAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "draft_tokens_accepted_total",
			Help: "Draft-pipeline tokens accepted by rejection sampling.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inferno_engine", Name: "step_duration_seconds",
			Help: "Wall-clock duration of one engine step.", Buckets: prometheus.DefBuckets,
		}),
		SamplerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inferno_engine", Name: "sampler_duration_seconds",
			Help: "Wall-clock duration of one Sampler.Sample call.", Buckets: prometheus.DefBuckets,
		}),
		SequenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inferno_engine", Name: "sequence_errors_total",
			Help: "Sequences closed with an error, labeled by ErrorKind.",
		}, []string{"kind"}),
	}
}

// Collectors returns every metric for registration with a
// prometheus.Registerer, e.g. registry.MustRegister(m.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.QueueDepth, m.RunningSeqs, m.FreeBlocks, m.Preemptions, m.Admissions,
		m.PrefixCacheHits, m.PrefixCacheMisses, m.TokensGenerated,
		m.DraftTokensProposed, m.DraftTokensAccepted,
		m.StepDuration, m.SamplerDuration, m.SequenceErrors,
	}
}

// ObserveStep times a step and records it; use as
// defer m.ObserveStep(time.Now()).
func (m *Metrics) ObserveStep(start time.Time) {
	m.StepDuration.Observe(time.Since(start).Seconds())
}
