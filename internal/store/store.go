package store

import (
	"errors"
	"slices"
)

var (
	ErrStoreUnavailable      = errors.New("durable store unavailable")
	ErrSchemaVersionConflict = errors.New("schema version conflict")
	ErrDuplicateKey          = errors.New("duplicate key")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrRestoreFailure        = errors.New("restore failed")
	ErrUnknownCollection     = errors.New("unknown collection")
	ErrUnknownIndex          = errors.New("unknown index")
	ErrInvalidQuantity       = errors.New("invalid quantity")
)

// SchemaVersion is the schema this build migrates to. It only ever grows and
// every step up to it is additive.
const SchemaVersion uint = 3

const (
	Products              = "products"
	Sales                 = "sales"
	Clients               = "clients"
	Suppliers             = "suppliers"
	FinancialTransactions = "financial_transactions"
	Entries               = "entries"
	SessionState          = "session"
)

// Collection describes a named record set and the JSON fields it keeps a
// secondary lookup index on. It mirrors the DDL shipped in the dialect
// migrations.
type Collection struct {
	Name    string
	Indexes []string
	// Since is the schema version that introduced the collection.
	Since uint
}

func (c Collection) HasIndex(field string) bool {
	return slices.Contains(c.Indexes, field)
}

var collections = []Collection{
	{Name: Products, Indexes: []string{"name", "category"}, Since: 1},
	{Name: Sales, Indexes: []string{"date", "productId", "clientId"}, Since: 1},
	{Name: Clients, Indexes: []string{"companyName"}, Since: 1},
	{Name: Suppliers, Indexes: []string{"name"}, Since: 1},
	{Name: FinancialTransactions, Indexes: []string{"date", "type"}, Since: 2},
	{Name: Entries, Indexes: []string{"date", "productId"}, Since: 3},
	{Name: SessionState, Since: 3},
}

// Collections returns every collection known to the current schema.
func Collections() []Collection {
	return slices.Clone(collections)
}

func LookupCollection(name string) (Collection, error) {
	for _, c := range collections {
		if c.Name == name {
			return c, nil
		}
	}
	return Collection{}, ErrUnknownCollection
}
