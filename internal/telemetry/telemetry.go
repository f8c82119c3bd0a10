// Package telemetry builds the engine's structured logger and the
// Prometheus counters/gauges that back its additive metrics surface.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewLogger returns a production-mode sugared logger, or a
// development-mode one (human-readable console output) when dev is
// true.
func NewLogger(dev bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Metrics is the set of Prometheus series published alongside the plain
// StoreStats struct the engine's public API returns. Each set is
// registered against the Registerer passed to NewMetrics under fixed
// metric names, so two sets registered against the same Registerer
// collide.
type Metrics struct {
	Writes       prometheus.Counter
	Flushes      prometheus.Counter
	Compactions  prometheus.Counter
	SSTableCount prometheus.Gauge
	MemtableSize prometheus.Gauge
}

// NewMetrics constructs and registers a fresh Metrics set against reg.
// Pass prometheus.NewRegistry() in tests to avoid the global default
// registry's "duplicate metrics collector registration" panics across
// test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skv_writes_total",
			Help: "Total PUT and DELETE operations accepted by the engine.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skv_flushes_total",
			Help: "Total memtable flushes to a new SSTable.",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skv_compactions_total",
			Help: "Total compactions requested through the engine's Compact call.",
		}),
		SSTableCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skv_sstable_count",
			Help: "Current number of live SSTables.",
		}),
		MemtableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skv_memtable_size_bytes",
			Help: "Current estimated memtable byte size.",
		}),
	}
	reg.MustRegister(m.Writes, m.Flushes, m.Compactions, m.SSTableCount, m.MemtableSize)
	return m
}
