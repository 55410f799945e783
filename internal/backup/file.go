package backup

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/blake2b"

	"lojafacil/backend/internal/domain"
	"lojafacil/backend/internal/repository"
)

// FormatVersion is the version of the backup file layout written by Write.
const FormatVersion = 1

var (
	ErrChecksumMismatch   = errors.New("backup checksum mismatch")
	ErrUnsupportedVersion = errors.New("unsupported backup version")
)

// Write encodes data as an indented JSON document with a checksum over its
// collections.
func Write(w io.Writer, data domain.BackupData) error {
	data = normalize(data)
	if data.Version == 0 {
		data.Version = FormatVersion
	}
	sum, err := Checksum(data)
	if err != nil {
		return err
	}
	data.Checksum = sum

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

type envelope struct {
	Version               int             `json:"version"`
	SchemaVersion         uint            `json:"schemaVersion"`
	ExportedAt            *time.Time      `json:"exportedAt"`
	Checksum              string          `json:"checksum"`
	Products              json.RawMessage `json:"products"`
	Sales                 json.RawMessage `json:"sales"`
	Clients               json.RawMessage `json:"clients"`
	Suppliers             json.RawMessage `json:"suppliers"`
	FinancialTransactions json.RawMessage `json:"financialTransactions"`
	Entries               json.RawMessage `json:"entries"`
}

// Read decodes a backup document. String dates in any accepted layout are
// rehydrated, a missing array stays nil, and a present checksum must match.
func Read(r io.Reader) (domain.BackupData, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return domain.BackupData{}, fmt.Errorf("decode backup: %w", err)
	}
	if env.Version > FormatVersion {
		return domain.BackupData{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	data := domain.BackupData{
		Version:       env.Version,
		SchemaVersion: env.SchemaVersion,
		ExportedAt:    env.ExportedAt,
		Checksum:      env.Checksum,
	}

	var err error
	if data.Products, err = decodeArray[domain.Product](env.Products, "products"); err != nil {
		return domain.BackupData{}, err
	}
	if data.Sales, err = decodeArray[domain.Sale](env.Sales, "sales", "date"); err != nil {
		return domain.BackupData{}, err
	}
	if data.Clients, err = decodeArray[domain.Client](env.Clients, "clients", "registeredAt"); err != nil {
		return domain.BackupData{}, err
	}
	if data.Suppliers, err = decodeArray[domain.Supplier](env.Suppliers, "suppliers", "registeredAt"); err != nil {
		return domain.BackupData{}, err
	}
	if data.FinancialTransactions, err = decodeArray[domain.FinancialTransaction](env.FinancialTransactions, "financialTransactions", "date"); err != nil {
		return domain.BackupData{}, err
	}
	if data.Entries, err = decodeArray[domain.Entry](env.Entries, "entries", "date"); err != nil {
		return domain.BackupData{}, err
	}

	if data.Products == nil && data.Sales == nil && data.Clients == nil &&
		data.Suppliers == nil && data.FinancialTransactions == nil && data.Entries == nil {
		return domain.BackupData{}, errNoCollections
	}

	data = normalize(data)
	if data.Checksum != "" {
		sum, err := Checksum(data)
		if err != nil {
			return domain.BackupData{}, err
		}
		if sum != data.Checksum {
			return domain.BackupData{}, fmt.Errorf("%w: file says %s, content hashes to %s", ErrChecksumMismatch, data.Checksum, sum)
		}
	}
	return data, nil
}

func decodeArray[T any](raw json.RawMessage, name string, dateFields ...string) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	rehydrate := repository.RehydrateDates(dateFields...)
	items := make([]T, 0, len(elems))
	for i, elem := range elems {
		doc, err := rehydrate(elem)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", name, i, err)
		}
		var item T
		if err := json.Unmarshal(doc, &item); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", name, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Checksum is the BLAKE2b-256 hex digest of the snapshot's collections in
// their canonical JSON encoding. Envelope metadata is not covered.
func Checksum(data domain.BackupData) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	parts := []struct {
		name  string
		value any
	}{
		{"products", data.Products},
		{"sales", data.Sales},
		{"clients", data.Clients},
		{"suppliers", data.Suppliers},
		{"financialTransactions", data.FinancialTransactions},
		{"entries", data.Entries},
	}
	for _, part := range parts {
		encoded, err := json.Marshal(part.value)
		if err != nil {
			return "", fmt.Errorf("checksum %s: %w", part.name, err)
		}
		h.Write([]byte(part.name))
		h.Write([]byte{0})
		h.Write(encoded)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
