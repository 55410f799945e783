package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lojafacil/backend/internal/store"
)

func TestRecorderCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.ObserveStoreOp(store.Sales, "get", time.Now(), nil)
	rec.ObserveStoreOp(store.Sales, "get", time.Now(), fmt.Errorf("sales %q: %w", "x", store.ErrNotFound))
	rec.ObserveStoreOp(store.Sales, "add", time.Now(), store.ErrDuplicateKey)
	rec.ObserveStoreOp(store.Sales, "add", time.Now(), errors.New("disk full"))

	cases := map[[2]string]float64{
		{"get", "ok"}:        1,
		{"get", "not_found"}: 1,
		{"add", "duplicate"}: 1,
		{"add", "error"}:     1,
	}
	for labels, want := range cases {
		got := testutil.ToFloat64(rec.storeOps.WithLabelValues(store.Sales, labels[0], labels[1]))
		if got != want {
			t.Fatalf("op=%s result=%s: expected %v, got %v", labels[0], labels[1], want, got)
		}
	}
	if n := testutil.CollectAndCount(rec.storeLatency); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
}

func TestStockMovedSplitsDirection(t *testing.T) {
	rec := New(nil)

	rec.StockMoved("sale", -3)
	rec.StockMoved("sale_reversal", 3)
	rec.StockMoved("entry", 0)

	if got := testutil.ToFloat64(rec.stockMoves.WithLabelValues("sale", "out")); got != 3 {
		t.Fatalf("expected 3 units out, got %v", got)
	}
	if got := testutil.ToFloat64(rec.stockMoves.WithLabelValues("sale_reversal", "in")); got != 3 {
		t.Fatalf("expected 3 units in, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.stockMoves); n != 2 {
		t.Fatalf("zero delta should not create a series, got %d series", n)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.ObserveStoreOp(store.Products, "list", time.Now(), nil)
	rec.SaleCreated()
	rec.SaleDeleted()
	rec.StockMoved("sale", 1)
	rec.RestoreFinished(store.ErrRestoreFailure)
	rec.CartOp("add")
}
