// internal/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jumpdefi"

// Collector owns the prometheus collectors of one process. All methods are
// safe on a nil *Collector, which records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	priceFetches  *prometheus.CounterVec
	priceDuration prometheus.Histogram
	priceRows     prometheus.Gauge
	rpcLatency    *prometheus.HistogramVec
	rpcErrors     *prometheus.CounterVec
	vaultAPR      *prometheus.GaugeVec
	vaultFill     *prometheus.GaugeVec
	aprMissing    *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg. A nil
// reg uses a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		gatherer: reg,
		priceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_fetches_total",
				Help:      "Price feed requests by outcome",
			},
			[]string{"status"},
		),
		priceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "price_fetch_duration_seconds",
				Help:      "Price feed request duration including retries",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		priceRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "price_table_rows",
				Help:      "Rows in the current price table",
			},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "NEAR RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"method", "contract"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_errors_total",
				Help:      "Failed NEAR RPC view calls",
			},
			[]string{"method", "contract"},
		),
		vaultAPR: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vault_apr_percent",
				Help:      "Effective APR of a vault in percent",
			},
			[]string{"contract", "vault_id"},
		),
		vaultFill: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vault_fill_percent",
				Help:      "Filled share of vault capacity in percent",
			},
			[]string{"contract", "vault_id"},
		),
		aprMissing: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apr_unavailable_total",
				Help:      "APR calculations that lacked price data",
			},
			[]string{"contract"},
		),
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Persisted snapshots by kind and outcome",
			},
			[]string{"kind", "status"},
		),
	}

	reg.MustRegister(
		c.priceFetches, c.priceDuration, c.priceRows,
		c.rpcLatency, c.rpcErrors,
		c.vaultAPR, c.vaultFill, c.aprMissing,
		c.snapshots,
	)
	return c
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordPriceFetch records one price feed refresh.
func (c *Collector) RecordPriceFetch(ctx context.Context, duration time.Duration, rows int, err error) {
	if c == nil {
		return
	}
	c.priceDuration.Observe(duration.Seconds())
	switch {
	case err == nil:
		c.priceFetches.WithLabelValues("success").Inc()
		c.priceRows.Set(float64(rows))
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		c.priceFetches.WithLabelValues("cancelled").Inc()
	default:
		c.priceFetches.WithLabelValues("failed").Inc()
	}
}

// RecordRPC records a view call against contract.
func (c *Collector) RecordRPC(method, contract string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.rpcLatency.WithLabelValues(method, contract).Observe(duration.Seconds())
	if err != nil {
		c.rpcErrors.WithLabelValues(method, contract).Inc()
	}
}

// UpdateVault sets the APR and fill gauges of one vault. available is false
// when the APR could not be computed; the APR gauge is then removed.
func (c *Collector) UpdateVault(contract string, vaultID int64, apr float64, available bool, fill float64) {
	if c == nil {
		return
	}
	id := strconv.FormatInt(vaultID, 10)
	c.vaultFill.WithLabelValues(contract, id).Set(fill)
	if !available {
		c.vaultAPR.DeleteLabelValues(contract, id)
		c.aprMissing.WithLabelValues(contract).Inc()
		return
	}
	c.vaultAPR.WithLabelValues(contract, id).Set(apr)
}

// RecordSnapshot counts a persisted snapshot batch.
func (c *Collector) RecordSnapshot(kind string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	c.snapshots.WithLabelValues(kind, status).Inc()
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	for _, v := range []interface{ Reset() }{
		c.priceFetches, c.rpcLatency, c.rpcErrors,
		c.vaultAPR, c.vaultFill, c.aprMissing, c.snapshots,
	} {
		v.Reset()
	}
	c.priceRows.Set(0)
}
