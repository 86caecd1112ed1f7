package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the agent's Prometheus collectors. All names are prefixed
// with "agent_".
type Metrics struct {
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	OracleCallsTotal  *prometheus.CounterVec
	OracleDuration    *prometheus.HistogramVec
	ToolCallsTotal    *prometheus.CounterVec
	StepRetriesTotal  prometheus.Counter
	GateBlocksTotal   *prometheus.CounterVec
	IntegrityFixTotal *prometheus.CounterVec
	EntitiesRedacted  *prometheus.CounterVec
	ResearchThrottled prometheus.Counter
}

// Default returns the process-wide collectors, registering them on first use.
func Default() *Metrics {
	once.Do(func() {
		global = &Metrics{
			TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agent_turns_total",
				Help: "Turns handled, by outcome.",
			}, []string{"outcome"}),
			TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "agent_turn_duration_seconds",
				Help:    "End-to-end turn latency.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}),
			OracleCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agent_oracle_calls_total",
				Help: "Reasoning model calls, by role and result.",
			}, []string{"role", "result"}),
			OracleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "agent_oracle_duration_seconds",
				Help:    "Reasoning model call latency.",
				Buckets: prometheus.DefBuckets,
			}, []string{"role"}),
			ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agent_tool_calls_total",
				Help: "Tool adapter invocations, by tool and result.",
			}, []string{"tool", "result"}),
			StepRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "agent_step_retries_total",
				Help: "Step retries triggered by the evaluator.",
			}),
			GateBlocksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agent_gate_blocks_total",
				Help: "Time-committing calls suppressed by the scheduling gate.",
			}, []string{"tool"}),
			IntegrityFixTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agent_integrity_corrections_total",
				Help: "False action claims removed from final answers.",
			}, []string{"kind"}),
			EntitiesRedacted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agent_entities_redacted_total",
				Help: "Spans replaced by placeholders, by category.",
			}, []string{"category"}),
			ResearchThrottled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "agent_research_throttled_total",
				Help: "Research calls that waited on the shared rate limiter.",
			}),
		}
	})
	return global
}

// ObserveOracle records one model call.
func (m *Metrics) ObserveOracle(role string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OracleCallsTotal.WithLabelValues(role, result).Inc()
	m.OracleDuration.WithLabelValues(role).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveTool(tool string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}
