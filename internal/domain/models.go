package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl,omitempty"`
}

func (p Product) RecordKey() string { return p.ID }

// CartItem is a product snapshot plus the requested quantity. Price holds the
// line's current unit price; OriginalPrice is set only while a promotion
// discount is applied to the line.
type CartItem struct {
	Product
	Quantity      int              `json:"quantity"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Sale keeps client and product names as they were when the sale was made.
type Sale struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	ClientID    string          `json:"clientId"`
	ClientName  string          `json:"clientName"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

func (s Sale) RecordKey() string { return s.ID }

// SaleTotal returns quantity*unitPrice - discount, floored at zero.
func SaleTotal(quantity int, unitPrice decimal.Decimal, discount decimal.Decimal) decimal.Decimal {
	total := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

type Address struct {
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	ZipCode    string `json:"zipCode,omitempty"`
}

type Client struct {
	ID           string    `json:"id"`
	RegisteredAt time.Time `json:"registeredAt"`
	CompanyName  string    `json:"companyName"`
	TradingName  string    `json:"tradingName,omitempty"`
	Document     string    `json:"document,omitempty"`
	Address      Address   `json:"address"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
}

func (c Client) RecordKey() string { return c.ID }

// DisplayName is the trading name, falling back to the company name.
func (c Client) DisplayName() string {
	if name := strings.TrimSpace(c.TradingName); name != "" {
		return name
	}
	return c.CompanyName
}

type Supplier struct {
	ID           string    `json:"id"`
	RegisteredAt time.Time `json:"registeredAt"`
	Name         string    `json:"name"`
	ContactName  string    `json:"contactName,omitempty"`
	Document     string    `json:"document,omitempty"`
	Address      Address   `json:"address"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
}

func (s Supplier) RecordKey() string { return s.ID }

type TransactionType string

const (
	TransactionInflow          TransactionType = "Entrada"
	TransactionOutflow         TransactionType = "Saída"
	TransactionFixedExpense    TransactionType = "Despesa fixa"
	TransactionVariableExpense TransactionType = "Despesa variável"
)

// IsInflow reports whether the transaction adds money to the ledger.
func (t TransactionType) IsInflow() bool {
	return t == TransactionInflow
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionInflow, TransactionOutflow, TransactionFixedExpense, TransactionVariableExpense:
		return true
	}
	return false
}

type FinancialTransaction struct {
	ID            string          `json:"id"`
	Date          time.Time       `json:"date"`
	Type          TransactionType `json:"type"`
	Counterparty  string          `json:"counterparty"`
	Description   string          `json:"description"`
	Value         decimal.Decimal `json:"value"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
}

func (t FinancialTransaction) RecordKey() string { return t.ID }

// Entry is a manual stock entry, usually goods received from a supplier.
type Entry struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	SupplierID   string          `json:"supplierId,omitempty"`
	SupplierName string          `json:"supplierName,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
}

func (e Entry) RecordKey() string { return e.ID }

// Promotion is produced by the recommendation collaborator. A zero
// DiscountPercentage means the promotion carries no price change.
type Promotion struct {
	Message             string          `json:"message"`
	DiscountedProductID string          `json:"discountedProductId,omitempty"`
	DiscountPercentage  decimal.Decimal `json:"discountPercentage"`
}

// Targets reports whether the promotion discounts the given product.
func (p Promotion) Targets(productID string) bool {
	return p.DiscountedProductID != "" && p.DiscountedProductID == productID && p.DiscountPercentage.IsPositive()
}

// Discount applies the promotion fraction to price, rounded to cents.
func (p Promotion) Discount(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Sub(p.DiscountPercentage)).Round(2)
}

// BackupData is a whole-store snapshot. A nil slice means the collection was
// absent from the snapshot; an empty, non-nil slice means it was empty.
type BackupData struct {
	Version               int                    `json:"version,omitempty"`
	SchemaVersion         uint                   `json:"schemaVersion,omitempty"`
	ExportedAt            *time.Time             `json:"exportedAt,omitempty"`
	Checksum              string                 `json:"checksum,omitempty"`
	Products              []Product              `json:"products"`
	Sales                 []Sale                 `json:"sales"`
	Clients               []Client               `json:"clients"`
	Suppliers             []Supplier             `json:"suppliers"`
	FinancialTransactions []FinancialTransaction `json:"financialTransactions"`
	Entries               []Entry                `json:"entries"`
}
