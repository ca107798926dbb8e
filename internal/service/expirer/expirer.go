// Package expirer periodically debits bonus points that outlived their TTL,
// writing EXPIRE ledger entries through the same unit of work as every
// other balance change.
package expirer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/model/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/repo"
	"github.com/luchan-pos/avocado-bonus/internal/utils/semaphore"
)

type Ledger interface {
	ListExpirable(ctx context.Context,
		cutoff time.Time) ([]repo.ExpirableBalance, error)
	Expire(ctx context.Context, clientID string,
		amount model.Amount, cutoff time.Time) (*ledger.Entry, error)
}

const maxConcurrentExpirations = 4

type Expirer struct {
	ledger   Ledger
	log      *slog.Logger
	sema     *semaphore.Semaphore
	ttl      time.Duration
	interval time.Duration
}

func New(l Ledger, ttl, interval time.Duration, log *slog.Logger) *Expirer {
	return &Expirer{
		ledger:   l,
		log:      log,
		sema:     semaphore.New(maxConcurrentExpirations),
		ttl:      ttl,
		interval: interval,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (e *Expirer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.LogAttrs(ctx, slog.LevelInfo, "expirer stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one expiration pass over all accounts holding points older
// than the TTL.
func (e *Expirer) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-e.ttl)
	expirable, err := e.ledger.ListExpirable(ctx, cutoff)
	if err != nil {
		e.log.LogAttrs(ctx,
			slog.LevelError,
			"failed to list expirable balances",
			slog.Any(model.KeyLoggerError, err),
		)
		return
	}
	if len(expirable) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, exp := range expirable {
		if err := e.sema.AcquireWithTimeout(model.DefaultTimeout); err != nil {
			e.log.LogAttrs(ctx,
				slog.LevelWarn,
				"skipping expiration, too many in flight",
				slog.String("client_id", exp.ClientID),
			)
			continue
		}

		wg.Add(1)
		go func(exp repo.ExpirableBalance) {
			defer wg.Done()
			defer e.sema.Release()

			if _, err := e.ledger.Expire(ctx, exp.ClientID, exp.Amount, cutoff); err != nil {
				e.log.LogAttrs(ctx,
					slog.LevelError,
					"failed to expire points",
					slog.String("client_id", exp.ClientID),
					slog.Any(model.KeyLoggerError, err),
				)
				return
			}
			e.log.LogAttrs(ctx,
				slog.LevelInfo,
				"expired bonus points",
				slog.String("client_id", exp.ClientID),
				slog.String("amount", exp.Amount.String()),
			)
		}(exp)
	}
	wg.Wait()
}
