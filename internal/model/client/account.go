package client

import (
	"time"

	"github.com/luchan-pos/avocado-bonus/internal/model"
)

// Account holds a client's running bonus balance. There is exactly one
// account per client; accounts are created on the first accrual and are
// never deleted. The balance at any moment equals the sum of all ledger
// entries written for the account.
type Account struct {
	UpdatedAt time.Time    `json:"updated_at"`
	ID        string       `json:"id"`
	ClientID  string       `json:"client_id"`
	Balance   model.Amount `json:"balance"`
}
