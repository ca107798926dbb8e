package ledger

import (
	"time"

	"github.com/luchan-pos/avocado-bonus/internal/model"
)

type Operation string

const (
	OpEarn   Operation = "EARN"
	OpSpend  Operation = "SPEND"
	OpAdjust Operation = "ADJUST"
	OpExpire Operation = "EXPIRE"
)

// Entry is one immutable ledger record. Every balance mutation writes
// exactly one Entry in the same database transaction, with before/after
// balance snapshots taken from that mutation.
//
// ReceiptID is the external POS check that caused the entry; it is empty
// for adjustments and expirations. (id_account, receipt_id) is unique, so a
// redelivered check cannot credit the account twice.
type Entry struct {
	CreatedAt     time.Time    `json:"created_at"`
	ID            string       `json:"id"`
	AccountID     string       `json:"account_id"`
	ClientID      string       `json:"client_id"`
	Operation     Operation    `json:"operation"`
	Description   string       `json:"description"`
	ReceiptID     string       `json:"receipt_id,omitempty"`
	Amount        model.Amount `json:"amount"`
	BalanceBefore model.Amount `json:"balance_before"`
	BalanceAfter  model.Amount `json:"balance_after"`
	BonusPercent  float64      `json:"bonus_percent,omitempty"`
	ReceiptTotal  model.Amount `json:"receipt_total,omitempty"`
}
