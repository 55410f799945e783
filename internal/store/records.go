package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrMissingKey = errors.New("record key is empty")

// Record is anything stored under a string primary key.
type Record interface {
	RecordKey() string
}

// DecodeHook rewrites a stored document before it is decoded.
type DecodeHook func(doc []byte) ([]byte, error)

// Session is the executor generic record access runs against: the shared
// handle, or a transaction opened by Manager.InTx.
type Session struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

type docRow struct {
	ID  string `db:"id"`
	Doc []byte `db:"doc"`
}

func GetAll[T any](ctx context.Context, s Session, collection string, hooks ...DecodeHook) ([]T, error) {
	c, err := LookupCollection(collection)
	if err != nil {
		return nil, err
	}

	var rows []docRow
	query := fmt.Sprintf(`SELECT id, doc FROM %s ORDER BY id`, c.Name)
	if err := sqlx.SelectContext(ctx, s.ext, &rows, query); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.Name, err)
	}
	return decodeRows[T](c.Name, rows, hooks)
}

func GetByKey[T any](ctx context.Context, s Session, collection string, key string, hooks ...DecodeHook) (T, error) {
	var zero T
	c, err := LookupCollection(collection)
	if err != nil {
		return zero, err
	}

	var row docRow
	query := s.ext.Rebind(fmt.Sprintf(`SELECT id, doc FROM %s WHERE id = ?`, c.Name))
	if err := sqlx.GetContext(ctx, s.ext, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("%s %q: %w", c.Name, key, ErrNotFound)
		}
		return zero, fmt.Errorf("get %s %q: %w", c.Name, key, err)
	}
	return decodeDoc[T](c.Name, row, hooks)
}

// FindBy returns the records whose indexed field equals value.
func FindBy[T any](ctx context.Context, s Session, collection string, field string, value string, hooks ...DecodeHook) ([]T, error) {
	c, err := LookupCollection(collection)
	if err != nil {
		return nil, err
	}
	if !c.HasIndex(field) {
		return nil, fmt.Errorf("%s.%s: %w", c.Name, field, ErrUnknownIndex)
	}

	var rows []docRow
	query := s.ext.Rebind(fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s = ? ORDER BY id`, c.Name, s.dialect.JSONField(field)))
	if err := sqlx.SelectContext(ctx, s.ext, &rows, query, value); err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", c.Name, field, err)
	}
	return decodeRows[T](c.Name, rows, hooks)
}

// Insert writes a new record and fails with ErrDuplicateKey when the key is
// already taken.
func Insert[T Record](ctx context.Context, s Session, collection string, item T) error {
	c, key, doc, err := prepare(collection, item)
	if err != nil {
		return err
	}

	query := s.ext.Rebind(fmt.Sprintf(
		`INSERT INTO %s (id, doc) VALUES (?, %s) ON CONFLICT (id) DO NOTHING`,
		c.Name, s.dialect.DocParam(),
	))
	affected, err := exec(ctx, s, query, key, doc)
	if err != nil {
		return fmt.Errorf("insert %s %q: %w", c.Name, key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %q: %w", c.Name, key, ErrDuplicateKey)
	}
	return nil
}

// Upsert writes the record whether or not the key exists.
func Upsert[T Record](ctx context.Context, s Session, collection string, item T) error {
	c, key, doc, err := prepare(collection, item)
	if err != nil {
		return err
	}

	query := s.ext.Rebind(fmt.Sprintf(
		`INSERT INTO %s (id, doc) VALUES (?, %s) ON CONFLICT (id) DO UPDATE SET doc = excluded.doc`,
		c.Name, s.dialect.DocParam(),
	))
	if _, err := exec(ctx, s, query, key, doc); err != nil {
		return fmt.Errorf("upsert %s %q: %w", c.Name, key, err)
	}
	return nil
}

// Update replaces an existing record and fails with ErrNotFound otherwise.
func Update[T Record](ctx context.Context, s Session, collection string, item T) error {
	c, key, doc, err := prepare(collection, item)
	if err != nil {
		return err
	}

	query := s.ext.Rebind(fmt.Sprintf(`UPDATE %s SET doc = %s WHERE id = ?`, c.Name, s.dialect.DocParam()))
	affected, err := exec(ctx, s, query, doc, key)
	if err != nil {
		return fmt.Errorf("update %s %q: %w", c.Name, key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %q: %w", c.Name, key, ErrNotFound)
	}
	return nil
}

// Remove deletes the record under key. A missing key is not an error.
func Remove(ctx context.Context, s Session, collection string, key string) error {
	c, err := LookupCollection(collection)
	if err != nil {
		return err
	}

	query := s.ext.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.Name))
	if _, err := exec(ctx, s, query, key); err != nil {
		return fmt.Errorf("remove %s %q: %w", c.Name, key, err)
	}
	return nil
}

// Clear deletes every record of the collection.
func Clear(ctx context.Context, s Session, collection string) error {
	c, err := LookupCollection(collection)
	if err != nil {
		return err
	}

	if _, err := exec(ctx, s, fmt.Sprintf(`DELETE FROM %s`, c.Name)); err != nil {
		return fmt.Errorf("clear %s: %w", c.Name, err)
	}
	return nil
}

func Count(ctx context.Context, s Session, collection string) (int, error) {
	c, err := LookupCollection(collection)
	if err != nil {
		return 0, err
	}

	var n int
	if err := sqlx.GetContext(ctx, s.ext, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.Name)); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name, err)
	}
	return n, nil
}

func prepare[T Record](collection string, item T) (Collection, string, string, error) {
	c, err := LookupCollection(collection)
	if err != nil {
		return Collection{}, "", "", err
	}
	key := item.RecordKey()
	if key == "" {
		return Collection{}, "", "", fmt.Errorf("%s: %w", c.Name, ErrMissingKey)
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return Collection{}, "", "", fmt.Errorf("encode %s %q: %w", c.Name, key, err)
	}
	return c, key, string(doc), nil
}

func exec(ctx context.Context, s Session, query string, args ...any) (int64, error) {
	res, err := s.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func decodeRows[T any](collection string, rows []docRow, hooks []DecodeHook) ([]T, error) {
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := decodeDoc[T](collection, row, hooks)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeDoc[T any](collection string, row docRow, hooks []DecodeHook) (T, error) {
	var item T
	doc := row.Doc
	for _, hook := range hooks {
		var err error
		if doc, err = hook(doc); err != nil {
			return item, fmt.Errorf("decode %s %q: %w", collection, row.ID, err)
		}
	}
	if err := json.Unmarshal(doc, &item); err != nil {
		return item, fmt.Errorf("decode %s %q: %w", collection, row.ID, err)
	}
	return item, nil
}
