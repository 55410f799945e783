package main

import (
	"errors"
	"strings"

	"lojafacil/backend/internal/backup"
	"lojafacil/backend/internal/cart"
	"lojafacil/backend/internal/finance"
	"lojafacil/backend/internal/recommendation"
	"lojafacil/backend/internal/service"
	"lojafacil/backend/internal/store"
)

// describeError turns an error into the message shown to the operator. The
// message always says whether anything was written.
func describeError(err error) string {
	var restoreErr *backup.RestoreError
	switch {
	case errors.As(err, &restoreErr):
		msg := "Restore stopped at " + restoreErr.Collection + ": " + restoreErr.Err.Error() + "."
		if len(restoreErr.Restored) > 0 {
			return msg + " Already replaced and NOT rolled back: " + strings.Join(restoreErr.Restored, ", ") +
				". The other collections are unchanged."
		}
		return msg + " No collection was changed."
	case errors.Is(err, store.ErrStoreUnavailable):
		return "The data store is unavailable; nothing was saved. Check the database path or URL. (" + err.Error() + ")"
	case errors.Is(err, store.ErrSchemaVersionConflict):
		return "The data store was upgraded by a newer version or is in use by another session. Close other sessions and run the command again; nothing was saved."
	case errors.Is(err, store.ErrInsufficientStock):
		return "Not enough stock; nothing was saved. (" + err.Error() + ")"
	case errors.Is(err, store.ErrDuplicateKey):
		return "A record with this id already exists; nothing was saved. (" + err.Error() + ")"
	case errors.Is(err, store.ErrNotFound):
		return "Record not found; nothing was saved. (" + err.Error() + ")"
	case errors.Is(err, store.ErrInvalidQuantity):
		return "Invalid quantity; nothing was saved. (" + err.Error() + ")"
	case errors.Is(err, cart.ErrInvalidPromotion):
		return "The discount must be a fraction from 0 up to (not including) 1; the cart is unchanged."
	case errors.Is(err, service.ErrEmptyCart):
		return "The cart is empty; no sale was recorded."
	case errors.Is(err, service.ErrInvalidDiscount):
		return "The discount must not be negative; nothing was saved."
	case errors.Is(err, finance.ErrInvalidTransaction):
		return "Invalid ledger entry; nothing was saved. (" + err.Error() + ")"
	case errors.Is(err, backup.ErrChecksumMismatch):
		return "The backup file is corrupted or was edited (checksum mismatch); nothing was restored."
	case errors.Is(err, backup.ErrUnsupportedVersion):
		return "The backup file was written by a newer version; nothing was restored."
	case errors.Is(err, recommendation.ErrInvalidPayload):
		return "The recommender could not read the sales history or inventory. (" + err.Error() + ")"
	}
	return "Error: " + err.Error()
}
