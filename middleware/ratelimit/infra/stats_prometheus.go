package infra

import (
	"context"

	"notes-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe as decisões do gate e o tamanho do store como métricas.
//
// Implementa domain.StatsStore (decisões) e domain.SweepObserver (sweeps).
// Não usa a chave do cliente como label para não explodir cardinalidade.
type PrometheusStats struct {
	decisions *prometheus.CounterVec
	swept     prometheus.Counter
	sweeps    prometheus.Counter
	tracked   prometheus.Gauge
}

var (
	_ domain.StatsStore    = (*PrometheusStats)(nil)
	_ domain.SweepObserver = (*PrometheusStats)(nil)
)

// NewPrometheusStats registra os coletores em reg.
func NewPrometheusStats(reg prometheus.Registerer, namespace string) (*PrometheusStats, error) {
	p := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Admission decisions by verdict and reason.",
		}, []string{"verdict", "reason"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "swept_records_total",
			Help:      "Client records removed by the sweeper.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "sweeps_total",
			Help:      "Completed sweeper passes.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "tracked_clients",
			Help:      "Client records held after the last sweep.",
		}),
	}

	for _, c := range []prometheus.Collector{p.decisions, p.swept, p.sweeps, p.tracked} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	verdict := "denied"
	if ev.Allowed {
		verdict = "allowed"
	}
	p.decisions.WithLabelValues(verdict, ev.Reason).Inc()
	return nil
}

func (p *PrometheusStats) ObserveSweep(removed, remaining int) {
	p.sweeps.Inc()
	p.swept.Add(float64(removed))
	p.tracked.Set(float64(remaining))
}

// RegisterPoolGauges expõe ocupação e capacidade do pool de concorrência.
func RegisterPoolGauges(reg prometheus.Registerer, namespace string, pool domain.SlotPool) error {
	inUse := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "inflight_requests",
		Help:      "Admitted requests currently holding a concurrency slot.",
	}, func() float64 { return float64(pool.InUse()) })
	capacity := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "inflight_capacity",
		Help:      "Maximum concurrent admitted requests.",
	}, func() float64 { return float64(pool.Cap()) })

	if err := reg.Register(inUse); err != nil {
		return err
	}
	return reg.Register(capacity)
}
