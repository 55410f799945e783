package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"lojafacil/backend/internal/backup"
	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/repository"
	"lojafacil/backend/internal/service"
	"lojafacil/backend/internal/store"
	"lojafacil/backend/internal/xid"
)

type appFunc func() *app

func migrateCmd(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the store and bring its schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if err := a.manager.Open(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "store %s at schema version %d\n", a.manager.Dialect().Name(), a.manager.Version())
			return nil
		},
	}
}

func exportCmd(current appFunc) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every collection to a backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := current().backup.Export(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return backup.Write(cmd.OutOrStdout(), data)
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := backup.Write(f, data); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "backup written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func restoreCmd(current appFunc) *cobra.Command {
	var atomic bool
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the collections present in a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			data, err := backup.Read(f)
			if err != nil {
				return err
			}
			var opts []backup.RestoreOption
			if atomic {
				opts = append(opts, backup.WithAtomic())
			}
			if err := current().backup.Restore(cmd.Context(), data, opts...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "restore complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&atomic, "atomic", false, "Restore all collections in one transaction")
	return cmd
}

func productsCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "products", Short: "Catalog"}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List products by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo := current().repos.Products
			var (
				products []domain.Product
				err      error
			)
			if category != "" {
				products, err = repo.FindBy(cmd.Context(), "category", category)
			} else {
				products, err = repo.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), products)
		},
	}
	list.Flags().StringVar(&category, "category", "", "Only products in this category")

	var (
		p     domain.Product
		price string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if p.Price, err = parseMoney("price", price); err != nil {
				return err
			}
			if p.Stock < 0 {
				return fmt.Errorf("stock %d: %w", p.Stock, store.ErrInvalidQuantity)
			}
			if p.ID == "" {
				p.ID = xid.New("prod")
			}
			if err := current().repos.Products.Add(cmd.Context(), p); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	add.Flags().StringVar(&p.ID, "id", "", "Product id (generated when empty)")
	add.Flags().StringVar(&p.Name, "name", "", "Name")
	add.Flags().StringVar(&p.Description, "description", "", "Description")
	add.Flags().StringVar(&price, "price", "0", "Unit price")
	add.Flags().IntVar(&p.Stock, "stock", 0, "Units in stock")
	add.Flags().StringVar(&p.Category, "category", "", "Category")
	add.Flags().StringVar(&p.ImageURL, "image", "", "Image reference")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(list, add)
	return cmd
}

func clientsCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "clients", Short: "Clients"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List clients by display name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clients, err := current().repos.Clients.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), clients)
		},
	}

	var c domain.Client
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.ID == "" {
				c.ID = xid.New("cli")
			}
			c.RegisteredAt = time.Now().UTC()
			if err := current().repos.Clients.Add(cmd.Context(), c); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
	add.Flags().StringVar(&c.ID, "id", "", "Client id (generated when empty)")
	add.Flags().StringVar(&c.CompanyName, "company", "", "Company name")
	add.Flags().StringVar(&c.TradingName, "trading", "", "Trading name")
	add.Flags().StringVar(&c.Document, "document", "", "CNPJ or CPF")
	add.Flags().StringVar(&c.Phone, "phone", "", "Phone")
	add.Flags().StringVar(&c.Email, "email", "", "Email")
	add.Flags().StringVar(&c.Address.City, "city", "", "City")
	add.Flags().StringVar(&c.Address.State, "state", "", "State")
	_ = add.MarkFlagRequired("company")

	cmd.AddCommand(list, add)
	return cmd
}

func salesCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "sales", Short: "Sales and their stock effect"}

	var product, client string
	list := &cobra.Command{
		Use:   "list",
		Short: "List sales, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sales, err := findOrList(cmd, current().repos.Sales,
				filter[domain.Sale]{"productId", product, func(s domain.Sale) string { return s.ProductID }},
				filter[domain.Sale]{"clientId", client, func(s domain.Sale) string { return s.ClientID }},
			)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sales)
		},
	}
	list.Flags().StringVar(&product, "product", "", "Only sales of this product")
	list.Flags().StringVar(&client, "client", "", "Only sales to this client")

	var (
		in                  service.SaleInput
		price, discount, on string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Record a sale and take it out of stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if price != "" {
				p, err := parseMoney("price", price)
				if err != nil {
					return err
				}
				in.UnitPrice = &p
			}
			if in.Discount, err = parseMoney("discount", discount); err != nil {
				return err
			}
			if in.Date, err = parseOptionalDate(on); err != nil {
				return err
			}
			sale, err := current().svc.CreateSale(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sale)
		},
	}
	create.Flags().StringVar(&in.ClientID, "client", "", "Client id")
	create.Flags().StringVar(&in.ProductID, "product", "", "Product id")
	create.Flags().IntVarP(&in.Quantity, "quantity", "q", 1, "Units sold")
	create.Flags().StringVar(&price, "price", "", "Unit price (default: current product price)")
	create.Flags().StringVar(&discount, "discount", "0", "Discount on the sale total")
	create.Flags().StringVar(&on, "date", "", "Sale date (default: now)")
	_ = create.MarkFlagRequired("client")
	_ = create.MarkFlagRequired("product")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sale and return its units to stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current().svc.DeleteSale(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sale %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func entriesCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "entries", Short: "Manual stock entries"}

	var product string
	list := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := findOrList(cmd, current().repos.Entries,
				filter[domain.Entry]{"productId", product, func(e domain.Entry) string { return e.ProductID }})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	list.Flags().StringVar(&product, "product", "", "Only entries of this product")

	var (
		in       service.EntryInput
		cost, on string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Record received goods and add them to stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.UnitCost, err = parseMoney("cost", cost); err != nil {
				return err
			}
			if in.Date, err = parseOptionalDate(on); err != nil {
				return err
			}
			entry, err := current().svc.RecordEntry(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
	create.Flags().StringVar(&in.ProductID, "product", "", "Product id")
	create.Flags().StringVar(&in.SupplierID, "supplier", "", "Supplier id")
	create.Flags().IntVarP(&in.Quantity, "quantity", "q", 1, "Units received")
	create.Flags().StringVar(&cost, "cost", "0", "Unit cost")
	create.Flags().StringVar(&on, "date", "", "Entry date (default: now)")
	create.Flags().StringVar(&in.Notes, "notes", "", "Notes")
	_ = create.MarkFlagRequired("product")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry and take its units back out of stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current().svc.DeleteEntry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entry %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func cartCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "cart", Short: "The in-progress cart, kept across runs"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show cart lines, promotion and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := current().cart(cmd.Context())
			if err != nil {
				return err
			}
			return printCart(cmd, engine.Items(), engine.Promotion(), engine.Summary())
		},
	}

	var quantity int
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add units of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			product, err := a.repos.Products.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			engine, err := a.cart(cmd.Context())
			if err != nil {
				return err
			}
			if err := engine.AddToCart(cmd.Context(), product, quantity); err != nil {
				return err
			}
			return printCart(cmd, engine.Items(), engine.Promotion(), engine.Summary())
		},
	}
	add.Flags().IntVarP(&quantity, "quantity", "q", 1, "Units to add")

	set := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set a line's quantity; zero removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q int
			if _, err := fmt.Sscan(args[1], &q); err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], store.ErrInvalidQuantity)
			}
			engine, err := current().cart(cmd.Context())
			if err != nil {
				return err
			}
			if err := engine.UpdateQuantity(cmd.Context(), args[0], q); err != nil {
				return err
			}
			return printCart(cmd, engine.Items(), engine.Promotion(), engine.Summary())
		},
	}

	remove := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := current().cart(cmd.Context())
			if err != nil {
				return err
			}
			if err := engine.RemoveFromCart(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printCart(cmd, engine.Items(), engine.Promotion(), engine.Summary())
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart and drop the promotion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := current().cart(cmd.Context())
			if err != nil {
				return err
			}
			return engine.ClearCart(cmd.Context())
		},
	}

	var client string
	checkout := &cobra.Command{
		Use:   "checkout",
		Short: "Turn every line into a sale and clear the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			engine, err := a.cart(cmd.Context())
			if err != nil {
				return err
			}
			summary := engine.Summary()
			sales, err := a.svc.Checkout(cmd.Context(), engine, client)
			if err != nil && sales == nil {
				return err
			}
			if printErr := printJSON(cmd.OutOrStdout(), map[string]any{"sales": sales, "summary": summary}); printErr != nil {
				return printErr
			}
			return err
		},
	}
	checkout.Flags().StringVar(&client, "client", "", "Client id")
	_ = checkout.MarkFlagRequired("client")

	cmd.AddCommand(show, add, set, remove, clearCmd, checkout)
	return cmd
}

func promoCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "promo", Short: "Cart promotions"}

	var apply bool
	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Ask the recommender for a promotion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			promo, err := a.svc.SuggestPromotion(cmd.Context())
			if err != nil {
				return err
			}
			if apply {
				engine, err := a.cart(cmd.Context())
				if err != nil {
					return err
				}
				if err := engine.ApplyPromotion(cmd.Context(), promo); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), promo)
		},
	}
	suggest.Flags().BoolVar(&apply, "apply", false, "Apply the suggestion to the cart")

	var (
		promo   domain.Promotion
		percent string
	)
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a promotion to the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if promo.DiscountPercentage, err = decimal.NewFromString(percent); err != nil {
				return fmt.Errorf("discount %q: %w", percent, err)
			}
			engine, err := current().cart(cmd.Context())
			if err != nil {
				return err
			}
			if err := engine.ApplyPromotion(cmd.Context(), promo); err != nil {
				return err
			}
			return printCart(cmd, engine.Items(), engine.Promotion(), engine.Summary())
		},
	}
	applyCmd.Flags().StringVar(&promo.Message, "message", "", "Message shown with the promotion")
	applyCmd.Flags().StringVar(&promo.DiscountedProductID, "product", "", "Discounted product id")
	applyCmd.Flags().StringVar(&percent, "discount", "0", "Discount fraction in [0, 1)")

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove the active promotion and restore prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := current().cart(cmd.Context())
			if err != nil {
				return err
			}
			if err := engine.RemovePromotion(cmd.Context()); err != nil {
				return err
			}
			return printCart(cmd, engine.Items(), engine.Promotion(), engine.Summary())
		},
	}

	cmd.AddCommand(suggest, applyCmd, remove)
	return cmd
}

func financeCmd(current appFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "finance", Short: "Financial ledger"}

	var (
		tx           domain.FinancialTransaction
		typ, val, on string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a ledger entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			tx.Type = domain.TransactionType(typ)
			if tx.Value, err = parseMoney("value", val); err != nil {
				return err
			}
			if tx.Date, err = parseOptionalDate(on); err != nil {
				return err
			}
			recorded, err := current().svc.RecordTransaction(cmd.Context(), tx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recorded)
		},
	}
	add.Flags().StringVar(&typ, "type", string(domain.TransactionInflow), "Entrada, Saída, Despesa fixa or Despesa variável")
	add.Flags().StringVar(&val, "value", "", "Amount")
	add.Flags().StringVar(&on, "date", "", "Date (default: now)")
	add.Flags().StringVar(&tx.Counterparty, "counterparty", "", "Origin or destination")
	add.Flags().StringVar(&tx.Description, "description", "", "Description")
	add.Flags().StringVar(&tx.Category, "category", "", "Category")
	add.Flags().StringVar(&tx.PaymentMethod, "payment", "", "Payment method")
	add.Flags().StringVar(&tx.Status, "status", "", "Status")
	add.Flags().StringVar(&tx.Notes, "notes", "", "Notes")
	_ = add.MarkFlagRequired("value")
	_ = add.MarkFlagRequired("description")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Totals and monthly buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := current().svc.FinanceSummary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}

	cmd.AddCommand(add, summary)
	return cmd
}

func printCart(cmd *cobra.Command, items []domain.CartItem, promo *domain.Promotion, summary any) error {
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"items":     items,
		"promotion": promo,
		"summary":   summary,
	})
}

type filter[T any] struct {
	field string
	value string
	get   func(T) string
}

// findOrList looks up the first non-empty filter through its index and keeps
// only the records matching every other non-empty filter. With no filters it
// lists the whole collection.
func findOrList[T store.Record](cmd *cobra.Command, repo *repository.Repository[T], filters ...filter[T]) ([]T, error) {
	active := slices.DeleteFunc(slices.Clone(filters), func(f filter[T]) bool { return f.value == "" })
	if len(active) == 0 {
		return repo.List(cmd.Context())
	}

	items, err := repo.FindBy(cmd.Context(), active[0].field, active[0].value)
	if err != nil {
		return nil, err
	}
	rest := active[1:]
	return slices.DeleteFunc(items, func(item T) bool {
		for _, f := range rest {
			if f.get(item) != f.value {
				return true
			}
		}
		return false
	}), nil
}

func parseMoney(name string, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(strings.Replace(value, ",", ".", 1))
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number", name, value)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New(name + " must not be negative")
	}
	return d, nil
}

func parseOptionalDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return repository.ParseDate(value)
}
