// Package finsync pulls accounts and transactions from the aggregator and
// persists them. Every write is an upsert keyed by the aggregator's ids, so
// repeating a sync over the same window leaves the store unchanged.
package finsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"finsight/internal/domain/account"
	"finsight/internal/domain/item"
	"finsight/internal/domain/syncrun"
	"finsight/internal/domain/transaction"
	"finsight/internal/infrastructure/aggregator"
	"finsight/internal/shared/apperr"
)

// Dispatcher runs fn in the background. It returns an error when the work
// could not be queued.
type Dispatcher interface {
	Dispatch(userID, description string, fn func(ctx context.Context) error) error
}

// LinkResult is returned by a successful link.
type LinkResult struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// Counts reports how many records a sync upserted.
type Counts struct {
	Accounts     int `json:"accounts"`
	Transactions int `json:"transactions"`
}

// Status describes a user's connection and their most recent sync.
type Status struct {
	Connected bool         `json:"connected"`
	ItemID    string       `json:"item_id,omitempty"`
	LinkedAt  *time.Time   `json:"linked_at,omitempty"`
	LastRun   *syncrun.Run `json:"last_run,omitempty"`
}

// Engine coordinates the aggregator client and the repositories.
type Engine struct {
	client       aggregator.ClientInterface
	items        item.Repository
	accounts     account.Repository
	transactions transaction.Repository
	runs         syncrun.Repository
	dispatcher   Dispatcher
	log          zerolog.Logger
	now          func() time.Time
}

// NewEngine creates a sync engine. Backfills are handed to dispatcher.
func NewEngine(
	client aggregator.ClientInterface,
	items item.Repository,
	accounts account.Repository,
	transactions transaction.Repository,
	runs syncrun.Repository,
	dispatcher Dispatcher,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		client:       client,
		items:        items,
		accounts:     accounts,
		transactions: transactions,
		runs:         runs,
		dispatcher:   dispatcher,
		log:          log.With().Str("component", "finsync").Logger(),
		now:          time.Now,
	}
}

// CreateLinkToken issues a link token for userID.
func (e *Engine) CreateLinkToken(ctx context.Context, userID string) (*aggregator.LinkToken, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id")
	}
	return e.client.CreateLinkToken(ctx, userID)
}

// SandboxPublicToken creates a public token against a test institution.
func (e *Engine) SandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error) {
	return e.client.CreateSandboxPublicToken(ctx, institutionID, products)
}

// LinkAndBackfill exchanges the public token, stores the user's Item and
// queues an initial backfill. The result does not depend on the backfill.
func (e *Engine) LinkAndBackfill(ctx context.Context, publicToken, userID string) (*LinkResult, error) {
	if publicToken == "" {
		return nil, apperr.Validation("public_token")
	}
	if userID == "" {
		return nil, apperr.Validation("user_id")
	}

	ex, err := e.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	it, err := e.items.Upsert(ctx, item.UpsertParams{UserID: userID, ItemID: ex.ItemID, AccessToken: ex.AccessToken})
	if err != nil {
		return nil, apperr.Store("item.Upsert", err)
	}

	e.log.Info().Str("user_id", userID).Str("item_id", it.ItemID).Msg("Item linked")

	accessToken, itemID := ex.AccessToken, ex.ItemID
	err = e.dispatcher.Dispatch(userID, "backfill", func(ctx context.Context) error {
		return e.backfill(ctx, accessToken, userID, itemID)
	})
	if err != nil {
		cause := apperr.PartialSync("finsync.Backfill", err)
		e.log.Error().Err(cause).Str("user_id", userID).Msg("Failed to queue backfill")

		now := e.now()
		window := DefaultWindow(now)
		run := &syncrun.Run{
			ID:          uuid.NewString(),
			UserID:      userID,
			ItemID:      itemID,
			Trigger:     syncrun.TriggerBackfill,
			WindowStart: window.Start,
			WindowEnd:   window.End,
			StartedAt:   now,
		}
		run.Finish(now, apperr.KindPartialSync.String(), cause)
		e.saveRun(ctx, run)
	}

	return &LinkResult{AccessToken: ex.AccessToken, ItemID: ex.ItemID}, nil
}

// Resync pulls accounts and then transactions within w. Accounts stay
// written when the transaction step fails.
func (e *Engine) Resync(ctx context.Context, accessToken, userID string, w Window) (Counts, error) {
	if accessToken == "" {
		return Counts{}, apperr.Validation("access_token")
	}
	if userID == "" {
		return Counts{}, apperr.Validation("user_id")
	}
	if err := w.Validate(); err != nil {
		return Counts{}, err
	}
	return e.run(ctx, runSpec{
		accessToken: accessToken,
		userID:      userID,
		itemID:      e.itemIDFor(ctx, userID, accessToken),
		trigger:     syncrun.TriggerResync,
		window:      w,
	})
}

// itemIDFor returns the stored item ID when accessToken belongs to the
// user's linked Item, and "" otherwise.
func (e *Engine) itemIDFor(ctx context.Context, userID, accessToken string) string {
	it, err := e.items.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, item.ErrItemNotFound) {
			e.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to look up item")
		}
		return ""
	}
	if it.AccessToken != accessToken {
		return ""
	}
	return it.ItemID
}

// backfill resyncs the default window and reports any failure as a
// partial sync.
func (e *Engine) backfill(ctx context.Context, accessToken, userID, itemID string) error {
	_, err := e.run(ctx, runSpec{
		accessToken: accessToken,
		userID:      userID,
		itemID:      itemID,
		trigger:     syncrun.TriggerBackfill,
		window:      DefaultWindow(e.now()),
		wrap: func(err error) error {
			return apperr.PartialSync("finsync.Backfill", err)
		},
	})
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("Backfill failed")
	}
	return err
}

// ResyncItem resyncs a stored Item over the default window.
func (e *Engine) ResyncItem(ctx context.Context, it *item.Item) (Counts, error) {
	return e.run(ctx, runSpec{
		accessToken: it.AccessToken,
		userID:      it.UserID,
		itemID:      it.ItemID,
		trigger:     syncrun.TriggerScheduled,
		window:      DefaultWindow(e.now()),
	})
}

// Items lists every linked Item.
func (e *Engine) Items(ctx context.Context) ([]*item.Item, error) {
	items, err := e.items.List(ctx)
	if err != nil {
		return nil, apperr.Store("item.List", err)
	}
	return items, nil
}

// Status reports whether userID has linked and their latest sync run.
func (e *Engine) Status(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id")
	}

	st := &Status{}
	it, err := e.items.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, item.ErrItemNotFound):
	case err != nil:
		return nil, apperr.Store("item.GetByUserID", err)
	default:
		st.Connected = true
		st.ItemID = it.ItemID
		linked := it.UpdatedAt
		st.LinkedAt = &linked
	}

	run, err := e.runs.LatestByUserID(ctx, userID)
	switch {
	case errors.Is(err, syncrun.ErrRunNotFound):
	case err != nil:
		return nil, apperr.Store("syncrun.LatestByUserID", err)
	default:
		st.LastRun = run
	}
	return st, nil
}

// Accounts returns the user's stored accounts, newest first.
func (e *Engine) Accounts(ctx context.Context, userID string) ([]*account.Account, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id")
	}
	accounts, err := e.accounts.ListByUserID(ctx, userID, 0)
	if err != nil {
		return nil, apperr.Store("account.ListByUserID", err)
	}
	return accounts, nil
}

// Transactions returns up to limit of the user's most recent transactions.
func (e *Engine) Transactions(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id")
	}
	txs, err := e.transactions.ListRecentByUserID(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Store("transaction.ListRecentByUserID", err)
	}
	return txs, nil
}

type runSpec struct {
	accessToken string
	userID      string
	itemID      string
	trigger     syncrun.Trigger
	window      Window
	wrap        func(error) error
}

// run executes one sync and records it as a SyncRun.
func (e *Engine) run(ctx context.Context, spec runSpec) (Counts, error) {
	run := &syncrun.Run{
		ID:          uuid.NewString(),
		UserID:      spec.userID,
		ItemID:      spec.itemID,
		Trigger:     spec.trigger,
		Status:      syncrun.StatusRunning,
		WindowStart: spec.window.Start,
		WindowEnd:   spec.window.End,
		StartedAt:   e.now(),
	}
	e.saveRun(ctx, run)

	log := e.log.With().
		Str("user_id", spec.userID).
		Str("run_id", run.ID).
		Str("trigger", string(spec.trigger)).
		Stringer("window", spec.window).
		Logger()
	log.Info().Msg("Sync started")

	counts, err := e.sync(ctx, spec)
	if err != nil && spec.wrap != nil {
		err = spec.wrap(err)
	}

	run.AccountsUpserted = counts.Accounts
	run.TransactionsUpserted = counts.Transactions
	kind := ""
	if err != nil {
		kind = apperr.KindOf(err).String()
	}
	run.Finish(e.now(), kind, err)
	e.saveRun(context.WithoutCancel(ctx), run)

	if err != nil {
		log.Warn().Err(err).
			Int("accounts", counts.Accounts).
			Int("transactions", counts.Transactions).
			Msg("Sync failed")
		return counts, err
	}

	log.Info().
		Int("accounts", counts.Accounts).
		Int("transactions", counts.Transactions).
		Msg("Sync complete")
	return counts, nil
}

func (e *Engine) sync(ctx context.Context, spec runSpec) (Counts, error) {
	var counts Counts

	accounts, err := e.client.FetchAccounts(ctx, spec.accessToken)
	if err != nil {
		return counts, err
	}
	n, err := e.accounts.UpsertBatch(ctx, normalizeAccounts(spec.userID, spec.itemID, accounts))
	if err != nil {
		return counts, apperr.Store("account.UpsertBatch", err)
	}
	counts.Accounts = n

	txs, err := e.client.FetchTransactions(ctx, spec.accessToken, spec.window.Start, spec.window.End)
	if err != nil {
		return counts, err
	}
	params, err := normalizeTransactions(spec.userID, txs)
	if err != nil {
		return counts, apperr.Upstream("finsync.normalizeTransactions", err)
	}
	n, err = e.transactions.UpsertBatch(ctx, params)
	if err != nil {
		return counts, apperr.Store("transaction.UpsertBatch", err)
	}
	counts.Transactions = n

	return counts, nil
}

// saveRun records run; failures are logged and never fail the sync.
func (e *Engine) saveRun(ctx context.Context, run *syncrun.Run) {
	if err := e.runs.Save(ctx, run); err != nil {
		e.log.Error().Err(err).Str("run_id", run.ID).Str("user_id", run.UserID).Msg("Failed to record sync run")
	}
}
