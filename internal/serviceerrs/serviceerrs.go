package serviceerrs

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrTokenExpired      = errors.New("token expired")
	ErrInsufficientFunds = errors.New("insufficient bonus balance")
	ErrReceiptInFlight   = errors.New("receipt is already being processed")
)

// DuplicateReceiptError signals that the receipt was already credited to the
// account. EntryID points at the ledger entry created by the first delivery,
// so a retried request can be answered with the original result instead of
// double-crediting the client.
type DuplicateReceiptError struct {
	EntryID string
}

func (e *DuplicateReceiptError) Error() string {
	return "receipt already credited"
}

func (e *DuplicateReceiptError) Is(target error) bool {
	_, ok := target.(*DuplicateReceiptError)
	return ok
}
