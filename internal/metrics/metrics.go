// Package metrics records store, sale and restore activity as Prometheus
// series. A nil *Recorder is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lojafacil/backend/internal/store"
)

const namespace = "loja"

type Recorder struct {
	storeOps     *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	sales        *prometheus.CounterVec
	stockMoves   *prometheus.CounterVec
	restores     *prometheus.CounterVec
	cartOps      *prometheus.CounterVec
}

// New builds a recorder and registers its collectors on reg. A nil reg keeps
// the collectors unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Record operations by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_seconds",
			Help:      "Record operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"collection", "op"}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Sales created and deleted.",
		}, []string{"event"}),
		stockMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_units_moved_total",
			Help:      "Units added to or removed from stock, by reason.",
		}, []string{"reason", "direction"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Backup restores by result.",
		}, []string{"result"}),
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"op"}),
	}

	if reg != nil {
		reg.MustRegister(r.storeOps, r.storeLatency, r.sales, r.stockMoves, r.restores, r.cartOps)
	}
	return r
}

func (r *Recorder) ObserveStoreOp(collection string, op string, startedAt time.Time, err error) {
	if r == nil {
		return
	}
	r.storeOps.WithLabelValues(collection, op, resultLabel(err)).Inc()
	r.storeLatency.WithLabelValues(collection, op).Observe(time.Since(startedAt).Seconds())
}

func (r *Recorder) SaleCreated() {
	if r == nil {
		return
	}
	r.sales.WithLabelValues("created").Inc()
}

func (r *Recorder) SaleDeleted() {
	if r == nil {
		return
	}
	r.sales.WithLabelValues("deleted").Inc()
}

// StockMoved records a stock change of delta units. Zero deltas are ignored.
func (r *Recorder) StockMoved(reason string, delta int) {
	if r == nil || delta == 0 {
		return
	}
	direction := "in"
	if delta < 0 {
		direction = "out"
		delta = -delta
	}
	r.stockMoves.WithLabelValues(reason, direction).Add(float64(delta))
}

func (r *Recorder) RestoreFinished(err error) {
	if r == nil {
		return
	}
	r.restores.WithLabelValues(resultLabel(err)).Inc()
}

func (r *Recorder) CartOp(op string) {
	if r == nil {
		return
	}
	r.cartOps.WithLabelValues(op).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrDuplicateKey):
		return "duplicate"
	case errors.Is(err, store.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
