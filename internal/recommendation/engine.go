package recommendation

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"lojafacil/backend/internal/cache"
	"lojafacil/backend/internal/domain"
)

var ErrInvalidPayload = errors.New("invalid recommendation payload")

// Recommender turns a serialized purchase history and a serialized
// inventory into a promotion for the cart.
type Recommender interface {
	Suggest(ctx context.Context, history []byte, inventory []byte) (domain.Promotion, error)
}

// Engine is the bundled Recommender. It looks for the product whose stock
// covers the most days at its recent sales velocity and discounts it.
type Engine struct {
	cache    cache.PromotionCache
	cacheTTL time.Duration
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(cacheStore cache.PromotionCache, cacheTTL time.Duration, logger *slog.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopPromotionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		window:   30 * 24 * time.Hour,
		logger:   logger.With(slog.String("component", "recommendation")),
		now:      time.Now,
	}
}

type candidate struct {
	product   domain.Product
	velocity  float64
	coverDays float64
}

func (e *Engine) Suggest(ctx context.Context, history []byte, inventory []byte) (domain.Promotion, error) {
	var sales []domain.Sale
	if err := json.Unmarshal(history, &sales); err != nil {
		return domain.Promotion{}, fmt.Errorf("%w: history: %v", ErrInvalidPayload, err)
	}
	var products []domain.Product
	if err := json.Unmarshal(inventory, &products); err != nil {
		return domain.Promotion{}, fmt.Errorf("%w: inventory: %v", ErrInvalidPayload, err)
	}

	cacheKey := buildCacheKey(history, inventory)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		e.logger.Warn("promotion cache read failed", slog.Any("error", err))
	}

	promo := e.suggest(sales, products)
	if err := e.cache.Set(ctx, cacheKey, &promo, e.cacheTTL); err != nil {
		e.logger.Warn("promotion cache write failed", slog.Any("error", err))
	}
	return promo, nil
}

func (e *Engine) suggest(sales []domain.Sale, products []domain.Product) domain.Promotion {
	since := e.now().Add(-e.window)
	sold := make(map[string]int, len(products))
	for _, sale := range sales {
		if sale.Date.Before(since) {
			continue
		}
		sold[sale.ProductID] += sale.Quantity
	}

	days := e.window.Hours() / 24
	candidates := make([]candidate, 0, len(products))
	for _, product := range products {
		if product.Stock <= 0 {
			continue
		}
		velocity := float64(sold[product.ID]) / days
		cover := math.Inf(1)
		if velocity > 0 {
			cover = float64(product.Stock) / velocity
		}
		candidates = append(candidates, candidate{product: product, velocity: velocity, coverDays: cover})
	}

	if len(candidates) == 0 {
		return domain.Promotion{Message: "Sem produtos em estoque para promover."}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].coverDays != candidates[j].coverDays {
			return candidates[i].coverDays > candidates[j].coverDays
		}
		if candidates[i].product.Stock != candidates[j].product.Stock {
			return candidates[i].product.Stock > candidates[j].product.Stock
		}
		return candidates[i].product.ID < candidates[j].product.ID
	})

	best := candidates[0]
	pct := discountFor(best.coverDays)
	if pct.IsZero() {
		return domain.Promotion{Message: "Estoque girando bem, nenhuma promoção necessária."}
	}

	return domain.Promotion{
		Message: fmt.Sprintf("%s: %s%% de desconto para girar o estoque (%s).",
			best.product.Name, pct.Shift(2).StringFixed(0), describeCover(best)),
		DiscountedProductID: best.product.ID,
		DiscountPercentage:  pct,
	}
}

// discountFor maps days of stock cover to a discount tier.
func discountFor(coverDays float64) decimal.Decimal {
	switch {
	case coverDays >= 90:
		return decimal.RequireFromString("0.20")
	case coverDays >= 60:
		return decimal.RequireFromString("0.15")
	case coverDays >= 30:
		return decimal.RequireFromString("0.10")
	}
	return decimal.Zero
}

func describeCover(c candidate) string {
	if c.velocity == 0 {
		return "sem vendas nos últimos 30 dias"
	}
	return fmt.Sprintf("estoque para %.0f dias", round2(c.coverDays))
}

func buildCacheKey(history []byte, inventory []byte) string {
	h := sha1.New()
	h.Write(history)
	h.Write([]byte{0})
	h.Write(inventory)
	return "loja:promotion:" + hex.EncodeToString(h.Sum(nil))
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
