package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/proteintune/internal/config"
)

type metrics struct {
	registry       *prometheus.Registry
	reloads        *prometheus.CounterVec
	stage          prometheus.Gauge
	effectiveBatch prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proteintune",
			Name:      "config_reloads_total",
			Help:      "Configuration reload attempts by result.",
		}, []string{"result"}),
		stage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proteintune",
			Name:      "config_stage",
			Help:      "Fine-tuning stage of the active configuration (1 or 2).",
		}),
		effectiveBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proteintune",
			Name:      "effective_batch_size",
			Help:      "Samples per optimizer step for the active configuration.",
		}),
	}
	m.registry.MustRegister(m.reloads, m.stage, m.effectiveBatch)
	return m
}

func (m *metrics) observe(cfg *config.Config) {
	if cfg == nil {
		return
	}
	stage, _ := config.ValidateStageConsistency(cfg)
	m.stage.Set(float64(stage))
	m.effectiveBatch.Set(float64(config.EffectiveBatchSize(cfg.Run)))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
