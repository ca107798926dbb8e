package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/model/client"
	"github.com/luchan-pos/avocado-bonus/internal/model/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
)

type AccountRepository struct {
	DB
}

func NewAccountRepository(pool connectionPool, log *slog.Logger) *AccountRepository {
	return &AccountRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

// AppendParams describes one balance mutation. Amount is signed: EARN
// entries carry a positive amount, SPEND and EXPIRE a negative one, ADJUST
// either. ReceiptID, when set, makes the mutation idempotent per account.
type AppendParams struct {
	ClientID     string
	Operation    ledger.Operation
	Description  string
	ReceiptID    string
	Amount       model.Amount
	ReceiptTotal model.Amount
	BonusPercent float64
}

const ledgerReceiptConstraint = "uq_bonus_ledger_account_receipt"

// Append applies one signed balance change and writes the matching ledger
// entry in a single transaction. The account is created on first use. The
// increment happens inside the UPDATE statement itself, so concurrent
// appends to one account serialize on the row and cannot lose updates.
//
// A duplicate (account, receipt) pair aborts the transaction; the entry
// written by the first delivery is returned alongside DuplicateReceiptError.
func (r *AccountRepository) Append(ctx context.Context, p AppendParams,
) (ledger.Entry, error) {
	appendLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		accountID, err := ensureAccount(ctx, tx, p.ClientID)
		if err != nil {
			return ledger.Entry{}, err
		}
		return appendEntry(ctx, tx, accountID, p)
	}

	runWithTX := func() (ledger.Entry, error) {
		return WithTX[ledger.Entry](ctx, r.pool, r.log, appendLogic)
	}

	entry, err := WithRetry[ledger.Entry](runWithTX, 0)
	if err == nil {
		return entry, nil
	}
	if errors.Is(err, serviceerrs.ErrInsufficientFunds) {
		return ledger.Entry{}, serviceerrs.ErrInsufficientFunds
	}
	if isUniqueViolation(err, ledgerReceiptConstraint) {
		return r.resolveDuplicate(ctx, p.ClientID, p.ReceiptID)
	}
	return ledger.Entry{}, err //nolint: wrapcheck // error from wrapped function
}

func ensureAccount(ctx context.Context,
	tx connectionPool, clientID string,
) (string, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO bonus_accounts (id_client)
         VALUES ($1)
         ON CONFLICT (id_client) DO NOTHING`,
		clientID)
	if err != nil {
		return "", fmt.Errorf("failed to create account for client %s: %w",
			clientID, err)
	}

	var accountID string
	err = tx.QueryRow(ctx,
		`SELECT id_account FROM bonus_accounts WHERE id_client = $1`,
		clientID).Scan(&accountID)
	if err != nil {
		return "", fmt.Errorf("failed to find account for client %s: %w",
			clientID, err)
	}
	return accountID, nil
}

func appendEntry(ctx context.Context,
	tx connectionPool, accountID string, p AppendParams,
) (ledger.Entry, error) {
	var balanceAfter pgtype.Numeric
	err := tx.QueryRow(ctx,
		`UPDATE bonus_accounts
         SET balance = balance + $2, updated_at = now()
         WHERE id_account = $1 AND balance + $2 >= 0
         RETURNING balance`,
		accountID, p.Amount.ToPGNumeric()).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, serviceerrs.ErrInsufficientFunds
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf(
			"failed to update balance for account %s: %w", accountID, err)
	}

	after, err := model.FromPGNumeric(balanceAfter)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid balance from DB: %w", err)
	}
	before := after.Add(p.Amount.Neg())

	entry := ledger.Entry{
		AccountID:     accountID,
		ClientID:      p.ClientID,
		Operation:     p.Operation,
		Description:   p.Description,
		ReceiptID:     p.ReceiptID,
		Amount:        p.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		BonusPercent:  p.BonusPercent,
		ReceiptTotal:  p.ReceiptTotal,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO bonus_ledger
             (id_account, id_client, operation, amount,
              balance_before, balance_after, description,
              receipt_id, bonus_percent, receipt_total)
         VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
         RETURNING id_entry, created_at`,
		accountID,
		p.ClientID,
		string(p.Operation),
		p.Amount.ToPGNumeric(),
		before.ToPGNumeric(),
		after.ToPGNumeric(),
		p.Description,
		p.ReceiptID,
		p.BonusPercent,
		p.ReceiptTotal.ToPGNumeric(),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf(
			"failed to insert ledger entry for account %s: %w", accountID, err)
	}

	return entry, nil
}

func (r *AccountRepository) resolveDuplicate(ctx context.Context,
	clientID, receiptID string,
) (ledger.Entry, error) {
	entry, err := r.FindEntryByReceipt(ctx, clientID, receiptID)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf(
			"failed to find original entry for receipt %s: %w", receiptID, err)
	}
	return entry, &serviceerrs.DuplicateReceiptError{EntryID: entry.ID}
}

func (r *AccountRepository) FindByClient(ctx context.Context, clientID string,
) (client.Account, error) {
	findLogic := func() (client.Account, error) {
		row := r.pool.QueryRow(ctx,
			`SELECT id_account, id_client, balance, updated_at
             FROM bonus_accounts
             WHERE id_client = $1`,
			clientID)
		return scanAccount(row)
	}

	acc, err := WithRetry[client.Account](findLogic, 0)
	if errors.Is(err, pgx.ErrNoRows) {
		return client.Account{}, serviceerrs.ErrNotFound
	}
	if err != nil {
		return client.Account{}, err //nolint: wrapcheck // error from wrapped function
	}
	return acc, nil
}

func (r *AccountRepository) ListAccounts(ctx context.Context,
	limit, offset int,
) ([]client.Account, error) {
	listLogic := func() ([]client.Account, error) {
		rows, err := r.pool.Query(ctx,
			`SELECT id_account, id_client, balance, updated_at
             FROM bonus_accounts
             ORDER BY updated_at DESC
             LIMIT $1 OFFSET $2`,
			limit, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
		defer rows.Close()

		var accounts []client.Account
		for rows.Next() {
			acc, err := scanAccount(rows)
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, acc)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read accounts: %w", err)
		}
		return accounts, nil
	}

	return WithRetry[[]client.Account](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

func (r *AccountRepository) ListEntriesByClient(ctx context.Context,
	clientID string, limit, offset int,
) ([]ledger.Entry, error) {
	if len(clientID) == 0 {
		return nil, errors.New(
			"failed to list entries for empty client: clientID must be not empty")
	}

	listLogic := func() ([]ledger.Entry, error) {
		rows, err := r.pool.Query(ctx,
			`SELECT id_entry, id_account, id_client, operation, amount,
                    balance_before, balance_after, description,
                    COALESCE(receipt_id, ''), COALESCE(bonus_percent, 0),
                    COALESCE(receipt_total, 0), created_at
             FROM bonus_ledger
             WHERE id_client = $1
             ORDER BY created_at DESC
             LIMIT $2 OFFSET $3`,
			clientID, limit, offset)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to list entries by clientID %s: %w", clientID, err)
		}
		defer rows.Close()

		var entries []ledger.Entry
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read entries: %w", err)
		}
		return entries, nil
	}

	return WithRetry[[]ledger.Entry](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

func (r *AccountRepository) FindEntryByReceipt(ctx context.Context,
	clientID, receiptID string,
) (ledger.Entry, error) {
	findLogic := func() (ledger.Entry, error) {
		row := r.pool.QueryRow(ctx,
			`SELECT id_entry, id_account, id_client, operation, amount,
                    balance_before, balance_after, description,
                    COALESCE(receipt_id, ''), COALESCE(bonus_percent, 0),
                    COALESCE(receipt_total, 0), created_at
             FROM bonus_ledger
             WHERE id_client = $1 AND receipt_id = $2`,
			clientID, receiptID)
		return scanEntry(row)
	}

	entry, err := WithRetry[ledger.Entry](findLogic, 0)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, serviceerrs.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, err //nolint: wrapcheck // error from wrapped function
	}
	return entry, nil
}

// ExpirableBalance is the portion of one account's balance whose earnings
// are older than the expiry cutoff.
type ExpirableBalance struct {
	ClientID string
	Amount   model.Amount
}

// ListExpirable computes, per account, how many points earned on or before
// the cutoff are still unconsumed. Spends and expirations are stored with
// negative amounts, so the unconsumed remainder of old earnings is their sum
// plus all consumption, clamped to the current balance.
func (r *AccountRepository) ListExpirable(ctx context.Context,
	cutoff time.Time,
) ([]ExpirableBalance, error) {
	listLogic := func() ([]ExpirableBalance, error) {
		rows, err := r.pool.Query(ctx,
			`SELECT a.id_client,
                    LEAST(a.balance,
                          COALESCE(earned.total, 0) + COALESCE(consumed.total, 0))
             FROM bonus_accounts a
             LEFT JOIN (SELECT id_account, SUM(amount) AS total
                        FROM bonus_ledger
                        WHERE operation = 'EARN' AND created_at <= $1
                        GROUP BY id_account) earned
                 ON earned.id_account = a.id_account
             LEFT JOIN (SELECT id_account, SUM(amount) AS total
                        FROM bonus_ledger
                        WHERE amount < 0
                        GROUP BY id_account) consumed
                 ON consumed.id_account = a.id_account
             WHERE a.balance > 0`,
			cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to list expirable balances: %w", err)
		}
		defer rows.Close()

		var expirable []ExpirableBalance
		for rows.Next() {
			var clientID string
			var amountRaw pgtype.Numeric
			if err := rows.Scan(&clientID, &amountRaw); err != nil {
				return nil, fmt.Errorf("failed to scan expirable balance: %w", err)
			}
			amount, err := model.FromPGNumeric(amountRaw)
			if err != nil {
				return nil, fmt.Errorf("invalid expirable amount from DB: %w", err)
			}
			if amount.IsZero() || amount.IsNegative() {
				continue
			}
			expirable = append(expirable, ExpirableBalance{
				ClientID: clientID,
				Amount:   amount,
			})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read expirable balances: %w", err)
		}
		return expirable, nil
	}

	return WithRetry[[]ExpirableBalance](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

func scanAccount(row pgx.Row) (client.Account, error) {
	var acc client.Account
	var balanceRaw pgtype.Numeric
	if err := row.Scan(&acc.ID, &acc.ClientID, &balanceRaw, &acc.UpdatedAt); err != nil {
		return client.Account{}, err //nolint: wrapcheck // checked by callers
	}

	balance, err := model.FromPGNumeric(balanceRaw)
	if err != nil {
		return client.Account{}, fmt.Errorf("invalid balance from DB: %w", err)
	}
	acc.Balance = balance
	return acc, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	var amountRaw, beforeRaw, afterRaw, totalRaw pgtype.Numeric
	err := row.Scan(&e.ID, &e.AccountID, &e.ClientID, &e.Operation,
		&amountRaw, &beforeRaw, &afterRaw, &e.Description,
		&e.ReceiptID, &e.BonusPercent, &totalRaw, &e.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err //nolint: wrapcheck // checked by callers
	}

	for _, conv := range []struct {
		dst *model.Amount
		src pgtype.Numeric
	}{
		{&e.Amount, amountRaw},
		{&e.BalanceBefore, beforeRaw},
		{&e.BalanceAfter, afterRaw},
		{&e.ReceiptTotal, totalRaw},
	} {
		amount, err := model.FromPGNumeric(conv.src)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("invalid amount from DB: %w", err)
		}
		*conv.dst = amount
	}
	return e, nil
}
