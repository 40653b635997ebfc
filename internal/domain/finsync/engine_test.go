package finsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/domain/syncrun"
	"finsight/internal/infrastructure/aggregator"
	"finsight/internal/infrastructure/crypto"
	"finsight/internal/infrastructure/sqlite"
	"finsight/internal/shared/apperr"
)

// MockClient implements aggregator.ClientInterface with overridable funcs.
type MockClient struct {
	CreateLinkTokenFunc     func(ctx context.Context, userID string) (*aggregator.LinkToken, error)
	ExchangePublicTokenFunc func(ctx context.Context, publicToken string) (*aggregator.Exchange, error)
	FetchAccountsFunc       func(ctx context.Context, accessToken string) ([]aggregator.Account, error)
	FetchTransactionsFunc   func(ctx context.Context, accessToken string, start, end time.Time) ([]aggregator.Transaction, error)
	SandboxTokenFunc        func(ctx context.Context, institutionID string, products []string) (string, error)

	mu          sync.Mutex
	txWindows   []Window
	accessCalls []string
}

func (m *MockClient) CreateLinkToken(ctx context.Context, userID string) (*aggregator.LinkToken, error) {
	if m.CreateLinkTokenFunc != nil {
		return m.CreateLinkTokenFunc(ctx, userID)
	}
	return &aggregator.LinkToken{LinkToken: "link-sandbox-" + userID}, nil
}

func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (*aggregator.Exchange, error) {
	if m.ExchangePublicTokenFunc != nil {
		return m.ExchangePublicTokenFunc(ctx, publicToken)
	}
	return &aggregator.Exchange{AccessToken: "access-" + publicToken, ItemID: "item-" + publicToken}, nil
}

func (m *MockClient) FetchAccounts(ctx context.Context, accessToken string) ([]aggregator.Account, error) {
	m.mu.Lock()
	m.accessCalls = append(m.accessCalls, accessToken)
	m.mu.Unlock()
	if m.FetchAccountsFunc != nil {
		return m.FetchAccountsFunc(ctx, accessToken)
	}
	return twoAccounts(), nil
}

func (m *MockClient) FetchTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]aggregator.Transaction, error) {
	m.mu.Lock()
	m.txWindows = append(m.txWindows, Window{Start: start, End: end})
	m.mu.Unlock()
	if m.FetchTransactionsFunc != nil {
		return m.FetchTransactionsFunc(ctx, accessToken, start, end)
	}
	return threeTransactions(), nil
}

func (m *MockClient) CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error) {
	if m.SandboxTokenFunc != nil {
		return m.SandboxTokenFunc(ctx, institutionID, products)
	}
	return "public-sandbox", nil
}

// syncDispatcher runs jobs inline so tests can observe their effects.
type syncDispatcher struct {
	err  error
	errs []error
}

func (d *syncDispatcher) Dispatch(userID, description string, fn func(ctx context.Context) error) error {
	if d.err != nil {
		return d.err
	}
	d.errs = append(d.errs, fn(context.Background()))
	return nil
}

func twoAccounts() []aggregator.Account {
	return []aggregator.Account{
		{
			AccountID: "acc-checking", Name: "Plaid Checking", Type: "depository", Mask: strPtr("0000"),
			Balances: aggregator.Balances{
				Current:         decimal.NewNullDecimal(decimal.RequireFromString("110")),
				Available:       decimal.NewNullDecimal(decimal.RequireFromString("100")),
				IsoCurrencyCode: strPtr("USD"),
			},
		},
		{
			AccountID: "acc-savings", Name: "Plaid Saving", Type: "depository", Mask: strPtr("1111"),
			Balances: aggregator.Balances{IsoCurrencyCode: strPtr("USD")},
		},
	}
}

func threeTransactions() []aggregator.Transaction {
	var txs []aggregator.Transaction
	for i, d := range []string{"2024-01-05", "2024-01-15", "2024-01-25"} {
		txs = append(txs, aggregator.Transaction{
			TransactionID: fmt.Sprintf("tx-%d", i), AccountID: "acc-checking", Name: "Coffee",
			Amount: decimal.RequireFromString("4.50"), Date: d, Category: []string{"Food and Drink", "Coffee"},
		})
	}
	return txs
}

type fixture struct {
	engine     *Engine
	client     *MockClient
	dispatcher *syncDispatcher
	items      *sqlite.ItemRepository
	accounts   *sqlite.AccountRepository
	txs        *sqlite.TransactionRepository
	runs       *sqlite.SyncRunRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	enc, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	f := &fixture{
		client:     &MockClient{},
		dispatcher: &syncDispatcher{},
		items:      sqlite.NewItemRepository(db, enc),
		accounts:   sqlite.NewAccountRepository(db),
		txs:        sqlite.NewTransactionRepository(db),
		runs:       sqlite.NewSyncRunRepository(db),
	}
	f.engine = NewEngine(f.client, f.items, f.accounts, f.txs, f.runs, f.dispatcher, zerolog.Nop())
	// each reading is one second later so runs order deterministically
	clock := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

func TestLinkAndBackfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.LinkAndBackfill(ctx, "pt1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-pt1", res.AccessToken)
	assert.Equal(t, "item-pt1", res.ItemID)

	it, err := f.items.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "item-pt1", it.ItemID)
	assert.Equal(t, "access-pt1", it.AccessToken)

	require.Len(t, f.dispatcher.errs, 1)
	assert.NoError(t, f.dispatcher.errs[0])

	accounts, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	for _, a := range accounts {
		assert.Equal(t, "item-pt1", a.ItemID)
	}

	require.Len(t, f.client.txWindows, 1)
	assert.Equal(t, day("2024-01-02"), f.client.txWindows[0].Start)
	assert.Equal(t, day("2024-02-01"), f.client.txWindows[0].End)

	run, err := f.runs.LatestByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, syncrun.TriggerBackfill, run.Trigger)
	assert.Equal(t, syncrun.StatusSucceeded, run.Status)
	assert.Equal(t, 2, run.AccountsUpserted)
	assert.Equal(t, 3, run.TransactionsUpserted)
}

func TestLinkAndBackfillValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.LinkAndBackfill(context.Background(), "", "u1")
	assert.EqualError(t, err, "public_token is required")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.engine.LinkAndBackfill(context.Background(), "pt1", "")
	assert.EqualError(t, err, "user_id is required")
}

func TestLinkAndBackfillExchangeFails(t *testing.T) {
	f := newFixture(t)
	f.client.ExchangePublicTokenFunc = func(ctx context.Context, publicToken string) (*aggregator.Exchange, error) {
		return nil, apperr.Upstream("aggregator.ExchangePublicToken", &aggregator.APIError{
			StatusCode: 400, ErrorType: aggregator.TypeInvalidInput, ErrorCode: aggregator.CodeInvalidPublicToken,
		})
	}

	_, err := f.engine.LinkAndBackfill(context.Background(), "expired", "u1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	_, err = f.items.GetByUserID(context.Background(), "u1")
	assert.Error(t, err, "no item must be stored")
	assert.Empty(t, f.dispatcher.errs)
}

func TestLinkSucceedsWhenBackfillFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.FetchTransactionsFunc = func(ctx context.Context, accessToken string, start, end time.Time) ([]aggregator.Transaction, error) {
		return nil, apperr.Upstream("aggregator.FetchTransactions", &aggregator.APIError{StatusCode: 500, ErrorType: aggregator.TypeAPIError})
	}

	res, err := f.engine.LinkAndBackfill(ctx, "pt1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "item-pt1", res.ItemID)

	require.Len(t, f.dispatcher.errs, 1)
	backfillErr := f.dispatcher.errs[0]
	assert.Equal(t, apperr.KindPartialSync, apperr.KindOf(backfillErr))
	assert.True(t, apperr.IsKind(backfillErr, apperr.KindUpstream))

	// accounts written before the failing step survive
	accounts, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	run, err := f.runs.LatestByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusFailed, run.Status)
	assert.Equal(t, "partial_sync", run.ErrorKind)
	assert.Equal(t, 2, run.AccountsUpserted)
	assert.Equal(t, 0, run.TransactionsUpserted)

	st, err := f.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, run.ID, st.LastRun.ID)
}

func TestLinkWhenBackfillCannotBeQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue is full")

	res, err := f.engine.LinkAndBackfill(ctx, "pt1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-pt1", res.AccessToken)

	run, err := f.runs.LatestByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusFailed, run.Status)
	assert.Equal(t, syncrun.TriggerBackfill, run.Trigger)
	assert.Equal(t, "partial_sync", run.ErrorKind)
	assert.Contains(t, run.ErrorMessage, "queue is full")
}

func TestResyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := Window{Start: day("2024-01-01"), End: day("2024-01-31")}

	first, err := f.engine.Resync(ctx, "access-1", "u1", w)
	require.NoError(t, err)
	assert.Equal(t, Counts{Accounts: 2, Transactions: 3}, first)

	accountsBefore, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	txsBefore, err := f.txs.ListRecentByUserID(ctx, "u1", 0)
	require.NoError(t, err)

	second, err := f.engine.Resync(ctx, "access-1", "u1", w)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	accountsAfter, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	txsAfter, err := f.txs.ListRecentByUserID(ctx, "u1", 0)
	require.NoError(t, err)

	require.Len(t, accountsAfter, len(accountsBefore))
	require.Len(t, txsAfter, len(txsBefore))
	for i := range accountsBefore {
		assert.Equal(t, accountsBefore[i].ID, accountsAfter[i].ID)
		assert.Equal(t, accountsBefore[i].CurrentBalance, accountsAfter[i].CurrentBalance)
		assert.True(t, accountsBefore[i].CreatedAt.Equal(accountsAfter[i].CreatedAt))
	}
	for i := range txsBefore {
		assert.Equal(t, txsBefore[i].ID, txsAfter[i].ID)
		assert.True(t, txsBefore[i].Amount.Equal(txsAfter[i].Amount))
	}

	count, err := f.txs.CountByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.Len(t, f.client.txWindows, 2)
	assert.Equal(t, w, f.client.txWindows[0])
}

func TestResyncCountsMatchStoredRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.FetchTransactionsFunc = func(ctx context.Context, accessToken string, start, end time.Time) ([]aggregator.Transaction, error) {
		txs := threeTransactions()
		return append(txs, txs[1]), nil
	}

	counts, err := f.engine.Resync(ctx, "access-1", "u1", Window{Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)

	stored, err := f.txs.CountByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored)
	assert.Equal(t, int(stored), counts.Transactions)

	run, err := f.runs.LatestByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, run.TransactionsUpserted)
}

func TestResyncWithOtherTokenKeepsAccountItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.LinkAndBackfill(ctx, "pt1", "u1")
	require.NoError(t, err)

	_, err = f.engine.Resync(ctx, "access-unlinked", "u1", Window{Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)

	accounts, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	for _, a := range accounts {
		assert.Equal(t, "item-pt1", a.ItemID, a.ID)
	}
}

func TestResyncKeepsNullBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Resync(ctx, "access-1", "u1", DefaultWindow(f.engine.now()))
	require.NoError(t, err)

	accounts, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	for _, a := range accounts {
		if a.ID == "acc-savings" {
			assert.False(t, a.CurrentBalance.Valid)
			assert.False(t, a.AvailableBalance.Valid)
		}
	}
}

func TestResyncValidation(t *testing.T) {
	f := newFixture(t)
	w := Window{Start: day("2024-01-01"), End: day("2024-01-31")}

	tests := []struct {
		name        string
		accessToken string
		userID      string
		window      Window
		want        string
	}{
		{"missing access token", "", "u1", w, "access_token is required"},
		{"missing user", "access-1", "", w, "user_id is required"},
		{"inverted window", "access-1", "u1", Window{Start: w.End, End: w.Start}, "start_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Resync(context.Background(), tt.accessToken, tt.userID, tt.window)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Empty(t, f.client.accessCalls, "validation happens before any upstream call")
}

func TestResyncAccountsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.FetchAccountsFunc = func(ctx context.Context, accessToken string) ([]aggregator.Account, error) {
		return nil, apperr.Upstream("aggregator.FetchAccounts", &aggregator.APIError{
			StatusCode: 400, ErrorType: aggregator.TypeItemError, ErrorCode: aggregator.CodeItemLoginRequired,
		})
	}

	counts, err := f.engine.Resync(ctx, "access-1", "u1", DefaultWindow(f.engine.now()))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, Counts{}, counts)
	assert.Empty(t, f.client.txWindows)

	run, err := f.runs.LatestByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "upstream", run.ErrorKind)
	assert.Equal(t, syncrun.TriggerResync, run.Trigger)
}

func TestResyncTransactionsFailureKeepsAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.FetchTransactionsFunc = func(ctx context.Context, accessToken string, start, end time.Time) ([]aggregator.Transaction, error) {
		return nil, apperr.Upstream("aggregator.FetchTransactions", &aggregator.APIError{ErrorCode: aggregator.CodePaginationLimit})
	}

	counts, err := f.engine.Resync(ctx, "access-1", "u1", DefaultWindow(f.engine.now()))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, 2, counts.Accounts)

	accounts, err := f.accounts.ListByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestResyncItemAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Nil(t, st.LastRun)

	f.dispatcher.err = errors.New("skip backfill")
	_, err = f.engine.LinkAndBackfill(ctx, "pt1", "u1")
	require.NoError(t, err)

	items, err := f.engine.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	counts, err := f.engine.ResyncItem(ctx, items[0])
	require.NoError(t, err)
	assert.Equal(t, Counts{Accounts: 2, Transactions: 3}, counts)
	assert.Equal(t, []string{"access-pt1"}, f.client.accessCalls)

	st, err = f.engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "item-pt1", st.ItemID)
	require.NotNil(t, st.LinkedAt)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, syncrun.TriggerScheduled, st.LastRun.Trigger)
	assert.Equal(t, syncrun.StatusSucceeded, st.LastRun.Status)
}

func TestReadQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Accounts(ctx, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.engine.Transactions(ctx, "", 5)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.engine.Status(ctx, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	accounts, err := f.engine.Accounts(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = f.engine.Resync(ctx, "access-1", "u1", Window{Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)

	txs, err := f.engine.Transactions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "tx-2", txs[0].ID)
}

func TestCreateLinkToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateLinkToken(context.Background(), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	tok, err := f.engine.CreateLinkToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "link-sandbox-u1", tok.LinkToken)
}
