package dto

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ShiraazMoollatjie/goluhn"
	passwordvalidator "github.com/wagslane/go-password-validator"

	"github.com/luchan-pos/avocado-bonus/internal/model/ledger"
)

type OperatorRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (r *OperatorRequest) IsValid() error {
	var invalidLoginErr error
	if r.Login == "" {
		invalidLoginErr = errors.New("login is empty")
	}

	const minEntropyBits = 50
	invalidPasswordErr := passwordvalidator.Validate(r.Password, minEntropyBits)
	return errors.Join(invalidLoginErr, invalidPasswordErr)
}

type LineItem struct {
	Name     string      `json:"name"`
	Quantity json.Number `json:"quantity"`
	Price    json.Number `json:"price"`
}

// ReceiptRequest is what the POS submits after a sale. BonusAmount arrives
// pre-computed by the POS pricing policy; BonusPercent and ReceiptTotal are
// kept for the audit trail only.
type ReceiptRequest struct {
	ClientID     string      `json:"client_id"`
	ReceiptID    string      `json:"receipt"`
	BonusAmount  json.Number `json:"bonus_amount"`
	BonusPercent json.Number `json:"bonus_percent,omitempty"`
	ReceiptTotal json.Number `json:"receipt_total,omitempty"`
	Items        []LineItem  `json:"items,omitempty"`
}

// IsValid checks the request shape. Receipt numbers come from LUCHAN with a
// Luhn check digit.
func (r *ReceiptRequest) IsValid() error {
	var errs []error
	if r.ClientID == "" {
		errs = append(errs, errors.New("client_id is empty"))
	}
	if r.ReceiptID == "" {
		errs = append(errs, errors.New("receipt is empty"))
	} else if err := goluhn.Validate(r.ReceiptID); err != nil {
		errs = append(errs, errors.New("receipt number checksum mismatch"))
	}
	if amount, err := r.BonusAmount.Float64(); err != nil {
		errs = append(errs, errors.New("bonus_amount is not a number"))
	} else if amount < 0 {
		errs = append(errs, errors.New("bonus_amount must be non-negative"))
	}
	return errors.Join(errs...)
}

type ReceiptResponse struct {
	ClientID        string      `json:"client_id"`
	BonusAccrued    json.Number `json:"bonus_amount_accrued"`
	LineItemDetails []LineItem  `json:"line_item_details,omitempty"`
}

type SpendRequest struct {
	ClientID  string      `json:"client_id"`
	ReceiptID string      `json:"receipt"`
	Sum       json.Number `json:"sum"`
}

func (r *SpendRequest) IsValid() error {
	var errs []error
	if r.ClientID == "" {
		errs = append(errs, errors.New("client_id is empty"))
	}
	if r.ReceiptID != "" {
		if err := goluhn.Validate(r.ReceiptID); err != nil {
			errs = append(errs, errors.New("receipt number checksum mismatch"))
		}
	}
	if sum, err := r.Sum.Float64(); err != nil {
		errs = append(errs, errors.New("sum is not a number"))
	} else if sum < 0 {
		errs = append(errs, errors.New("sum must be non-negative"))
	}
	return errors.Join(errs...)
}

type AccountResponse struct {
	UpdatedAt time.Time   `json:"updated_at"`
	ClientID  string      `json:"client_id"`
	Balance   json.Number `json:"balance"`
}

type EntryResponse struct {
	CreatedAt    time.Time        `json:"created_at"`
	Operation    ledger.Operation `json:"operation"`
	Description  string           `json:"description"`
	ReceiptID    string           `json:"receipt,omitempty"`
	Amount       json.Number      `json:"amount"`
	BalanceAfter json.Number      `json:"balance_after"`
}
