// Package ledger implements the bonus ledger: every balance change goes
// through here, is applied atomically together with its audit entry, and is
// idempotent per POS receipt.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/model/client"
	"github.com/luchan-pos/avocado-bonus/internal/model/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/repo"
	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
)

type Repository interface {
	Append(ctx context.Context, p repo.AppendParams) (ledger.Entry, error)
	FindByClient(ctx context.Context, clientID string) (client.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]client.Account, error)
	ListEntriesByClient(ctx context.Context,
		clientID string, limit, offset int) ([]ledger.Entry, error)
	ListExpirable(ctx context.Context,
		cutoff time.Time) ([]repo.ExpirableBalance, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func New(r Repository, log *slog.Logger) *Service {
	return &Service{
		repo: r,
		log:  log,
	}
}

// AccrueRequest carries one pre-computed accrual. The bonus amount is
// calculated by the POS side; the ledger only records it. ReceiptID is the
// originating check and doubles as the idempotency key.
type AccrueRequest struct {
	ClientID     string
	ReceiptID    string
	Description  string
	Amount       model.Amount
	ReceiptTotal model.Amount
	BonusPercent float64
}

// Accrue credits the client's account. A zero amount is an explicit no-op:
// nothing is written and no account is created, the caller gets a nil entry.
// A redelivered receipt returns the entry written by the first delivery and
// credits nothing.
func (s *Service) Accrue(ctx context.Context, req AccrueRequest,
) (*ledger.Entry, error) {
	if req.ClientID == "" {
		return nil, errors.New("clientID must be not empty")
	}
	if req.Amount.IsZero() {
		return nil, nil
	}
	if req.Amount.IsNegative() {
		return nil, errors.New("accrual amount must be positive")
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("bonus accrual for receipt %s", req.ReceiptID)
	}

	entry, err := s.repo.Append(ctx, repo.AppendParams{
		ClientID:     req.ClientID,
		Operation:    ledger.OpEarn,
		Description:  description,
		ReceiptID:    req.ReceiptID,
		Amount:       req.Amount,
		ReceiptTotal: req.ReceiptTotal,
		BonusPercent: req.BonusPercent,
	})
	var dup *serviceerrs.DuplicateReceiptError
	if errors.As(err, &dup) {
		s.log.LogAttrs(ctx,
			slog.LevelInfo,
			"duplicate receipt, returning original entry",
			slog.String("client_id", req.ClientID),
			slog.String("receipt_id", req.ReceiptID),
			slog.String("entry_id", dup.EntryID),
		)
		return &entry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accrue for client %s: %w",
			req.ClientID, err)
	}
	return &entry, nil
}

// SpendRequest redeems points. Amount is the positive number of points to
// debit.
type SpendRequest struct {
	ClientID    string
	ReceiptID   string
	Description string
	Amount      model.Amount
}

func (s *Service) Spend(ctx context.Context, req SpendRequest,
) (*ledger.Entry, error) {
	if req.ClientID == "" {
		return nil, errors.New("clientID must be not empty")
	}
	if req.Amount.IsZero() {
		return nil, nil
	}
	if req.Amount.IsNegative() {
		return nil, errors.New("spend amount must be positive")
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("bonus redemption for receipt %s", req.ReceiptID)
	}

	entry, err := s.repo.Append(ctx, repo.AppendParams{
		ClientID:    req.ClientID,
		Operation:   ledger.OpSpend,
		Description: description,
		ReceiptID:   req.ReceiptID,
		Amount:      req.Amount.Neg(),
	})
	var dup *serviceerrs.DuplicateReceiptError
	if errors.As(err, &dup) {
		return &entry, nil
	}
	if err != nil {
		return nil, err //nolint: wrapcheck // sentinel errors pass through
	}
	return &entry, nil
}

// Adjust writes a signed manual correction. Negative adjustments may not
// drive the balance below zero.
func (s *Service) Adjust(ctx context.Context,
	clientID string, amount model.Amount, description string,
) (*ledger.Entry, error) {
	if clientID == "" {
		return nil, errors.New("clientID must be not empty")
	}
	if amount.IsZero() {
		return nil, nil
	}

	entry, err := s.repo.Append(ctx, repo.AppendParams{
		ClientID:    clientID,
		Operation:   ledger.OpAdjust,
		Description: description,
		Amount:      amount,
	})
	if err != nil {
		return nil, err //nolint: wrapcheck // sentinel errors pass through
	}
	return &entry, nil
}

// Expire debits points that outlived their TTL. Called by the expiry
// sweeper only.
func (s *Service) Expire(ctx context.Context,
	clientID string, amount model.Amount, cutoff time.Time,
) (*ledger.Entry, error) {
	if amount.IsZero() {
		return nil, nil
	}
	if amount.IsNegative() {
		return nil, errors.New("expire amount must be positive")
	}

	entry, err := s.repo.Append(ctx, repo.AppendParams{
		ClientID:  clientID,
		Operation: ledger.OpExpire,
		Description: fmt.Sprintf(
			"bonus points earned before %s expired", cutoff.Format("2006-01-02")),
		Amount: amount.Neg(),
	})
	if err != nil {
		return nil, err //nolint: wrapcheck // sentinel errors pass through
	}
	return &entry, nil
}

// ListExpirable reports, per account, how many points earned on or before
// the cutoff are still unconsumed.
func (s *Service) ListExpirable(ctx context.Context, cutoff time.Time,
) ([]repo.ExpirableBalance, error) {
	return s.repo.ListExpirable(ctx, cutoff) //nolint: wrapcheck // sentinel errors pass through
}

func (s *Service) GetAccount(ctx context.Context, clientID string,
) (client.Account, error) {
	return s.repo.FindByClient(ctx, clientID) //nolint: wrapcheck // sentinel errors pass through
}

func (s *Service) ListAccounts(ctx context.Context, limit, offset int,
) ([]client.Account, error) {
	if limit <= 0 {
		limit = model.DefaultPageSize
	}
	return s.repo.ListAccounts(ctx, limit, offset) //nolint: wrapcheck // sentinel errors pass through
}

func (s *Service) ListEntries(ctx context.Context,
	clientID string, limit, offset int,
) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = model.DefaultPageSize
	}
	return s.repo.ListEntriesByClient(ctx, clientID, limit, offset) //nolint: wrapcheck // sentinel errors pass through
}
