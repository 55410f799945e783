package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/repository"
	"lojafacil/backend/internal/store"
	"lojafacil/backend/internal/store/sqlite"
)

type fixture struct {
	svc     *Service
	repos   *repository.Set
	manager *store.Manager
	path    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loja.db")
	m := store.NewManager(store.Options{Path: path}, sqlite.Dialect{}, nil)
	t.Cleanup(func() { _ = m.Close() })
	repos := repository.New(m, nil)
	return fixture{svc: New(m, repos, nil, nil), repos: repos, manager: m, path: path}
}

func seed(t *testing.T, repos *repository.Set) {
	t.Helper()
	ctx := context.Background()
	sp := time.FixedZone("BRT", -3*60*60)

	require.NoError(t, repos.Products.Add(ctx, domain.Product{ID: "P1", Name: "Caneca", Price: decimal.RequireFromString("10.00"), Stock: 5, Category: "cozinha"}))
	require.NoError(t, repos.Products.Add(ctx, domain.Product{ID: "P2", Name: "Prato", Price: decimal.RequireFromString("24.90"), Stock: 2}))
	require.NoError(t, repos.Clients.Add(ctx, domain.Client{ID: "C1", RegisteredAt: time.Date(2023, 11, 2, 9, 0, 0, 0, sp), CompanyName: "Mercado Central Ltda",
		Address: domain.Address{City: "Recife", State: "PE"}}))
	require.NoError(t, repos.Suppliers.Add(ctx, domain.Supplier{ID: "F1", RegisteredAt: time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC), Name: "Cerâmica Sul"}))
	require.NoError(t, repos.Sales.Add(ctx, domain.Sale{ID: "S1", Date: time.Date(2024, 3, 5, 14, 30, 0, 0, sp), ClientID: "C1", ClientName: "Mercado Central Ltda",
		ProductID: "P1", ProductName: "Caneca", Quantity: 2, UnitPrice: decimal.RequireFromString("10"), Discount: decimal.Zero, Total: decimal.RequireFromString("20")}))
	require.NoError(t, repos.FinancialTransactions.Add(ctx, domain.FinancialTransaction{ID: "T1", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Type: domain.TransactionFixedExpense, Description: "Aluguel", Value: decimal.RequireFromString("1200")}))
	require.NoError(t, repos.Entries.Add(ctx, domain.Entry{ID: "E1", Date: time.Date(2024, 2, 20, 8, 0, 0, 0, time.UTC), ProductID: "P2", ProductName: "Prato",
		Quantity: 6, UnitCost: decimal.RequireFromString("11.5"), Total: decimal.RequireFromString("69")}))
}

func TestExportRestoreRoundTripIsSetEqual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.repos)

	before, err := f.svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.SchemaVersion, before.SchemaVersion)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, before))

	// drift the store away from the snapshot
	require.NoError(t, f.repos.Products.Add(ctx, domain.Product{ID: "P3", Name: "Copo"}))
	require.NoError(t, f.repos.Sales.Remove(ctx, "S1"))

	snapshot, err := Read(&buf)
	require.NoError(t, err)
	require.NoError(t, f.svc.Restore(ctx, snapshot))

	after, err := f.svc.Export(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, before.Products, after.Products)
	assert.ElementsMatch(t, before.Sales, after.Sales)
	assert.ElementsMatch(t, before.Clients, after.Clients)
	assert.ElementsMatch(t, before.Suppliers, after.Suppliers)
	assert.ElementsMatch(t, before.FinancialTransactions, after.FinancialTransactions)
	assert.ElementsMatch(t, before.Entries, after.Entries)
	assert.True(t, after.Sales[0].Date.Equal(time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)))
}

func TestRestoreLeavesAbsentCollectionsUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.repos)

	err := f.svc.Restore(ctx, domain.BackupData{Products: []domain.Product{{ID: "P9", Name: "Jarra"}}})
	require.NoError(t, err)

	products, err := f.repos.Products.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "P9", products[0].ID)

	sales, err := f.repos.Sales.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestRestoreEmptyCollectionClearsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.repos)

	require.NoError(t, f.svc.Restore(ctx, domain.BackupData{Entries: []domain.Entry{}}))

	entries, err := f.repos.Entries.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreStopsAtFailingCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.repos)

	snapshot := domain.BackupData{
		Products: []domain.Product{{ID: "P7", Name: "Tigela"}},
		Clients:  []domain.Client{{ID: "dup", CompanyName: "A"}, {ID: "dup", CompanyName: "B"}},
		Sales:    []domain.Sale{},
	}
	err := f.svc.Restore(ctx, snapshot)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrRestoreFailure)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	var restoreErr *RestoreError
	require.ErrorAs(t, err, &restoreErr)
	assert.Equal(t, store.Clients, restoreErr.Collection)
	assert.Equal(t, []string{store.Products}, restoreErr.Restored)

	// products stay replaced, clients are unchanged, sales were never reached
	products, _ := f.repos.Products.List(ctx)
	require.Len(t, products, 1)
	assert.Equal(t, "P7", products[0].ID)
	clients, _ := f.repos.Clients.List(ctx)
	require.Len(t, clients, 1)
	assert.Equal(t, "C1", clients[0].ID)
	sales, _ := f.repos.Sales.List(ctx)
	assert.Len(t, sales, 1)
}

func TestAtomicRestoreRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.repos)

	snapshot := domain.BackupData{
		Products: []domain.Product{{ID: "P7", Name: "Tigela"}},
		Clients:  []domain.Client{{ID: "dup"}, {ID: "dup"}},
	}
	err := f.svc.Restore(ctx, snapshot, WithAtomic())
	assert.ErrorIs(t, err, store.ErrRestoreFailure)

	products, err := f.repos.Products.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestRestoreRefusesNewerSchema(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.repos)

	db, err := sql.Open("sqlite", f.path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE schema_migrations SET version = ?`, int(store.SchemaVersion)+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = f.svc.Restore(ctx, domain.BackupData{Products: []domain.Product{}})
	assert.ErrorIs(t, err, store.ErrSchemaVersionConflict)
}

func TestReadRehydratesStringDates(t *testing.T) {
	doc := `{
		"sales": [{"id": "S1", "date": "2024-03-05", "productId": "P1", "quantity": 1, "unitPrice": "10", "discount": "0", "total": "10"}],
		"clients": [{"id": "C1", "registeredAt": "2024-01-02T10:15", "companyName": "ACME"}],
		"entries": [{"id": "E1", "date": "", "productId": "P1", "quantity": 2, "unitCost": "1", "total": "2"}]
	}`

	data, err := Read(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Nil(t, data.Products, "absent array must stay absent")
	require.Len(t, data.Sales, 1)
	assert.True(t, data.Sales[0].Date.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, data.Clients[0].RegisteredAt.Equal(time.Date(2024, 1, 2, 10, 15, 0, 0, time.UTC)))
	assert.True(t, data.Entries[0].Date.IsZero())
}

func TestReadRejectsTamperedChecksum(t *testing.T) {
	f := newFixture(t)
	seed(t, f.repos)
	data, err := f.svc.Export(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, data))
	tampered := strings.Replace(buf.String(), `"Caneca"`, `"Canecas"`, 1)

	_, err = Read(strings.NewReader(tampered))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadRejectsUnknownDocuments(t *testing.T) {
	_, err := Read(strings.NewReader(`{"version": 99, "products": []}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Read(strings.NewReader(`{"version": 1}`))
	assert.True(t, errors.Is(err, errNoCollections))

	_, err = Read(strings.NewReader(`{"sales": [{"id": "S1", "date": "ontem"}]}`))
	assert.Error(t, err)
}
