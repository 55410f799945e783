package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/finance"
	"lojafacil/backend/internal/metrics"
	"lojafacil/backend/internal/recommendation"
	"lojafacil/backend/internal/repository"
	"lojafacil/backend/internal/store"
	"lojafacil/backend/internal/xid"
)

var (
	ErrInvalidDiscount = errors.New("discount must not be negative")
	ErrEmptyCart       = errors.New("cart is empty")
)

// Cart is the part of the cart engine checkout needs.
type Cart interface {
	Items() []domain.CartItem
	ClearCart(ctx context.Context) error
}

type SaleInput struct {
	ClientID  string
	ProductID string
	Quantity  int
	// UnitPrice defaults to the product's current price.
	UnitPrice *decimal.Decimal
	Discount  decimal.Decimal
	// Date defaults to now.
	Date time.Time
}

type EntryInput struct {
	ProductID  string
	SupplierID string
	Quantity   int
	UnitCost   decimal.Decimal
	Date       time.Time
	Notes      string
}

// Service couples sales and stock entries to the stock of the products they
// reference. Each operation runs in one store transaction.
type Service struct {
	manager     *store.Manager
	repos       *repository.Set
	recommender recommendation.Recommender
	logger      *slog.Logger
	metrics     *metrics.Recorder
	now         func() time.Time
}

func New(m *store.Manager, repos *repository.Set, recommender recommendation.Recommender, logger *slog.Logger, rec *metrics.Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		manager:     m,
		repos:       repos,
		recommender: recommender,
		logger:      logger.With(slog.String("component", "service")),
		metrics:     rec,
		now:         time.Now,
	}
}

// CreateSale records a sale and takes its quantity out of the product's
// stock. Both writes commit together or not at all.
func (s *Service) CreateSale(ctx context.Context, in SaleInput) (domain.Sale, error) {
	if in.Quantity < 1 {
		return domain.Sale{}, fmt.Errorf("sale quantity %d: %w", in.Quantity, store.ErrInvalidQuantity)
	}
	if in.Discount.IsNegative() {
		return domain.Sale{}, ErrInvalidDiscount
	}

	var sale domain.Sale
	err := s.manager.InTx(ctx, func(tx store.Session) error {
		repos := s.repos.In(tx)

		client, err := repos.Clients.Get(ctx, in.ClientID)
		if err != nil {
			return err
		}
		product, err := repos.Products.Get(ctx, in.ProductID)
		if err != nil {
			return err
		}

		unitPrice := product.Price
		if in.UnitPrice != nil {
			unitPrice = *in.UnitPrice
		}
		sale, err = s.sell(ctx, repos, product, client, in.Quantity, unitPrice, in.Discount, in.Date)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.metrics.SaleCreated()
	s.metrics.StockMoved("sale", -sale.Quantity)
	s.logger.Info("sale created",
		slog.String("sale_id", sale.ID),
		slog.String("product_id", sale.ProductID),
		slog.Int("quantity", sale.Quantity),
		slog.String("total", sale.Total.StringFixed(2)))
	return sale, nil
}

// sell writes the sale and the decremented product inside an open
// transaction.
func (s *Service) sell(ctx context.Context, repos *repository.Set, product domain.Product, client domain.Client, quantity int, unitPrice decimal.Decimal, discount decimal.Decimal, date time.Time) (domain.Sale, error) {
	if quantity > product.Stock {
		return domain.Sale{}, fmt.Errorf("product %q has %d in stock, %d requested: %w",
			product.ID, product.Stock, quantity, store.ErrInsufficientStock)
	}
	if date.IsZero() {
		date = s.now()
	}

	sale := domain.Sale{
		ID:          xid.New("sale"),
		Date:        date.UTC(),
		ClientID:    client.ID,
		ClientName:  client.DisplayName(),
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Discount:    discount,
		Total:       domain.SaleTotal(quantity, unitPrice, discount),
	}
	if err := repos.Sales.Add(ctx, sale); err != nil {
		return domain.Sale{}, err
	}

	product.Stock -= quantity
	if err := repos.Products.Update(ctx, product); err != nil {
		return domain.Sale{}, fmt.Errorf("decrement stock of %q: %w", product.ID, err)
	}
	return sale, nil
}

// DeleteSale removes a sale and returns its quantity to the product's stock.
// A product that no longer exists is skipped; a missing sale is a no-op.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	var (
		sale     domain.Sale
		found    bool
		restored bool
	)
	err := s.manager.InTx(ctx, func(tx store.Session) error {
		repos := s.repos.In(tx)

		var err error
		sale, err = repos.Sales.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		if err := repos.Sales.Remove(ctx, id); err != nil {
			return err
		}

		product, err := repos.Products.Get(ctx, sale.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		product.Stock += sale.Quantity
		if err := repos.Products.Update(ctx, product); err != nil {
			return fmt.Errorf("restore stock of %q: %w", product.ID, err)
		}
		restored = true
		return nil
	})
	if err != nil || !found {
		return err
	}

	s.metrics.SaleDeleted()
	if restored {
		s.metrics.StockMoved("sale_reversal", sale.Quantity)
	} else {
		s.logger.Warn("sale deleted without stock compensation, product no longer exists",
			slog.String("sale_id", sale.ID),
			slog.String("product_id", sale.ProductID))
	}
	s.logger.Info("sale deleted", slog.String("sale_id", sale.ID), slog.Int("quantity", sale.Quantity))
	return nil
}

// RecordEntry records goods received and adds them to the product's stock.
func (s *Service) RecordEntry(ctx context.Context, in EntryInput) (domain.Entry, error) {
	if in.Quantity < 1 {
		return domain.Entry{}, fmt.Errorf("entry quantity %d: %w", in.Quantity, store.ErrInvalidQuantity)
	}

	var entry domain.Entry
	err := s.manager.InTx(ctx, func(tx store.Session) error {
		repos := s.repos.In(tx)

		product, err := repos.Products.Get(ctx, in.ProductID)
		if err != nil {
			return err
		}
		var supplierName string
		if in.SupplierID != "" {
			supplier, err := repos.Suppliers.Get(ctx, in.SupplierID)
			if err != nil {
				return err
			}
			supplierName = supplier.Name
		}

		date := in.Date
		if date.IsZero() {
			date = s.now()
		}
		entry = domain.Entry{
			ID:           xid.New("entry"),
			Date:         date.UTC(),
			ProductID:    product.ID,
			ProductName:  product.Name,
			SupplierID:   in.SupplierID,
			SupplierName: supplierName,
			Quantity:     in.Quantity,
			UnitCost:     in.UnitCost,
			Total:        in.UnitCost.Mul(decimal.NewFromInt(int64(in.Quantity))),
			Notes:        in.Notes,
		}
		if err := repos.Entries.Add(ctx, entry); err != nil {
			return err
		}

		product.Stock += in.Quantity
		return repos.Products.Update(ctx, product)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	s.metrics.StockMoved("entry", entry.Quantity)
	s.logger.Info("stock entry recorded",
		slog.String("entry_id", entry.ID),
		slog.String("product_id", entry.ProductID),
		slog.Int("quantity", entry.Quantity))
	return entry, nil
}

// DeleteEntry removes an entry and takes its quantity back out of stock. It
// fails with store.ErrInsufficientStock when the units were already sold.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	var (
		entry    domain.Entry
		reversed bool
	)
	err := s.manager.InTx(ctx, func(tx store.Session) error {
		repos := s.repos.In(tx)

		var err error
		entry, err = repos.Entries.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		product, err := repos.Products.Get(ctx, entry.ProductID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			if product.Stock < entry.Quantity {
				return fmt.Errorf("product %q has %d in stock, entry %q added %d: %w",
					product.ID, product.Stock, entry.ID, entry.Quantity, store.ErrInsufficientStock)
			}
			product.Stock -= entry.Quantity
			if err := repos.Products.Update(ctx, product); err != nil {
				return err
			}
			reversed = true
		}
		return repos.Entries.Remove(ctx, id)
	})
	if err != nil {
		return err
	}
	if reversed {
		s.metrics.StockMoved("entry_reversal", -entry.Quantity)
	}
	return nil
}

// Checkout turns every cart line into a sale for clientID in one
// transaction and then clears the cart. A discounted line is sold at its
// original price with the promotion difference as the sale discount.
func (s *Service) Checkout(ctx context.Context, cart Cart, clientID string) ([]domain.Sale, error) {
	items := cart.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	sales := make([]domain.Sale, 0, len(items))
	err := s.manager.InTx(ctx, func(tx store.Session) error {
		repos := s.repos.In(tx)

		client, err := repos.Clients.Get(ctx, clientID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, item := range items {
			product, err := repos.Products.Get(ctx, item.ID)
			if err != nil {
				return err
			}

			unitPrice := item.Price
			discount := decimal.Zero
			if item.OriginalPrice != nil {
				unitPrice = *item.OriginalPrice
				discount = unitPrice.Sub(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
			}

			sale, err := s.sell(ctx, repos, product, client, item.Quantity, unitPrice, discount, now)
			if err != nil {
				return err
			}
			sales = append(sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, sale := range sales {
		s.metrics.SaleCreated()
		s.metrics.StockMoved("sale", -sale.Quantity)
	}
	s.logger.Info("checkout completed", slog.String("client_id", clientID), slog.Int("sales", len(sales)))

	if err := cart.ClearCart(ctx); err != nil {
		return sales, fmt.Errorf("sales recorded but cart not cleared: %w", err)
	}
	return sales, nil
}

// SuggestPromotion sends the sales history and the current inventory to the
// recommender.
func (s *Service) SuggestPromotion(ctx context.Context) (domain.Promotion, error) {
	if s.recommender == nil {
		return domain.Promotion{}, errors.New("no recommender configured")
	}

	sales, err := s.repos.Sales.List(ctx)
	if err != nil {
		return domain.Promotion{}, err
	}
	products, err := s.repos.Products.List(ctx)
	if err != nil {
		return domain.Promotion{}, err
	}

	history, err := json.Marshal(sales)
	if err != nil {
		return domain.Promotion{}, err
	}
	inventory, err := json.Marshal(products)
	if err != nil {
		return domain.Promotion{}, err
	}
	return s.recommender.Suggest(ctx, history, inventory)
}

// RecordTransaction validates and stores a ledger entry.
func (s *Service) RecordTransaction(ctx context.Context, tx domain.FinancialTransaction) (domain.FinancialTransaction, error) {
	if tx.ID == "" {
		tx.ID = xid.New("fin")
	}
	if tx.Date.IsZero() {
		tx.Date = s.now()
	}
	tx.Date = tx.Date.UTC()
	if err := finance.Validate(tx); err != nil {
		return domain.FinancialTransaction{}, err
	}
	if err := s.repos.FinancialTransactions.Add(ctx, tx); err != nil {
		return domain.FinancialTransaction{}, err
	}
	return tx, nil
}

func (s *Service) FinanceSummary(ctx context.Context) (finance.Summary, error) {
	txs, err := s.repos.FinancialTransactions.List(ctx)
	if err != nil {
		return finance.Summary{}, err
	}
	return finance.Summarize(txs), nil
}
