// Package crawler orchestrates per-bank crawl runs. A Runner resolves the
// owning bank, drives a site-specific Source through its fetch hooks, and
// persists everything through idempotent upserts, reporting one RunSummary
// per run. A parse failure on one item never aborts the run; only
// persistence failures are fatal.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// Source is implemented by bank-specific site adapters. Adapters fetch and
// parse their bank's pages and hand structured items to the Sink; selector
// tables and per-bank keyword tuning live entirely inside the adapter.
type Source interface {
	// Seed declares the bank identity registered on first run.
	Seed() types.BankSeed
	// FetchCards retrieves and persists the bank's card products.
	FetchCards(ctx context.Context, sink Sink) ([]types.CreditCard, error)
	// FetchPromotions retrieves and persists the bank's promotions.
	FetchPromotions(ctx context.Context, sink Sink) ([]types.Promotion, error)
}

// Sink gives adapters persistence scoped to the resolved bank plus per-item
// error reporting. Save errors returned to the adapter are persistence
// failures and should be propagated; parse problems belong in ReportError.
type Sink interface {
	Bank() types.Bank
	SaveCard(ctx context.Context, data types.CardUpsert) (types.CreditCard, error)
	SavePromotion(ctx context.Context, card types.CreditCard, data types.PromotionUpsert) (types.Promotion, error)
	FirstCard(ctx context.Context) (*types.CreditCard, error)
	ReportError(stage string, err error)
}

// Store is the persistence surface a Runner requires.
type Store interface {
	UpsertBank(ctx context.Context, seed types.BankSeed) (types.Bank, error)
	UpsertCard(ctx context.Context, bankID int64, data types.CardUpsert) (types.CreditCard, error)
	UpsertPromotion(ctx context.Context, cardID int64, data types.PromotionUpsert) (types.Promotion, error)
	FirstCardByBank(ctx context.Context, bankID int64) (*types.CreditCard, error)
}

// Runner executes crawl runs for one bank. Construct one per bank and per
// run batch; it holds no state shared with other runners.
type Runner struct {
	store  Store
	source Source
	bank   types.Bank
	logger *slog.Logger

	itemErrors []string
}

// NewRunner resolves the adapter's bank by unique code, creating the row on
// first use, and returns a runner bound to it.
func NewRunner(ctx context.Context, store Store, source Source, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seed := source.Seed()
	bank, err := store.UpsertBank(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("resolve bank %q: %w", seed.Code, err)
	}
	return &Runner{
		store:  store,
		source: source,
		bank:   bank,
		logger: logger.With("bank", bank.Code),
	}, nil
}

// Run executes one crawl: cards first, then promotions. It always produces
// a RunSummary, even for empty runs; the returned error is non-nil only for
// persistence failures, which abort the remainder of this bank's run while
// leaving already-committed upserts intact.
func (r *Runner) Run(ctx context.Context) (types.RunSummary, error) {
	summary := types.RunSummary{
		RunID:     uuid.NewString(),
		Bank:      r.bank.Name,
		StartedAt: time.Now(),
	}
	r.itemErrors = nil
	logger := r.logger.With("run_id", summary.RunID)
	logger.Info("crawl run started")

	cards, err := r.source.FetchCards(ctx, r)
	summary.Cards = len(cards)
	if err != nil {
		summary.Errors = append(r.itemErrors, err.Error())
		summary.Duration = time.Since(summary.StartedAt)
		return summary, fmt.Errorf("fetch cards for %s: %w", r.bank.Code, err)
	}

	promos, err := r.source.FetchPromotions(ctx, r)
	summary.Promotions = len(promos)
	if err != nil {
		summary.Errors = append(r.itemErrors, err.Error())
		summary.Duration = time.Since(summary.StartedAt)
		return summary, fmt.Errorf("fetch promotions for %s: %w", r.bank.Code, err)
	}

	summary.Errors = r.itemErrors
	summary.Duration = time.Since(summary.StartedAt)
	logger.Info("crawl run finished",
		"cards", summary.Cards,
		"promotions", summary.Promotions,
		"item_errors", len(summary.Errors),
		"duration", summary.Duration,
	)
	return summary, nil
}

// Bank returns the bank resolved at construction time.
func (r *Runner) Bank() types.Bank { return r.bank }

// SaveCard upserts a card under the runner's bank, keyed on (bank, name).
func (r *Runner) SaveCard(ctx context.Context, data types.CardUpsert) (types.CreditCard, error) {
	return r.store.UpsertCard(ctx, r.bank.ID, data)
}

// SavePromotion upserts a promotion under the given card, keyed on
// (card, title). The card must belong to the runner's bank.
func (r *Runner) SavePromotion(ctx context.Context, card types.CreditCard, data types.PromotionUpsert) (types.Promotion, error) {
	if card.BankID != r.bank.ID {
		return types.Promotion{}, fmt.Errorf("card %q belongs to bank %d, runner is bound to bank %d",
			card.Name, card.BankID, r.bank.ID)
	}
	return r.store.UpsertPromotion(ctx, card.ID, data)
}

// FirstCard returns the bank's oldest card, or nil when none exist yet.
func (r *Runner) FirstCard(ctx context.Context) (*types.CreditCard, error) {
	return r.store.FirstCardByBank(ctx, r.bank.ID)
}

// ReportError records a recoverable per-item failure on the run summary.
func (r *Runner) ReportError(stage string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("item skipped", "stage", stage, "error", err)
	r.itemErrors = append(r.itemErrors, fmt.Sprintf("%s: %v", stage, err))
}
