package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"finsight/internal/domain/account"
	"finsight/internal/domain/transaction"
)

type MockAccountRepository struct {
	ListByUserIDFunc func(ctx context.Context, userID string, limit int) ([]*account.Account, error)
	lastLimit        int
}

func (m *MockAccountRepository) UpsertBatch(ctx context.Context, params []account.UpsertParams) (int, error) {
	return len(params), nil
}

func (m *MockAccountRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
	m.lastLimit = limit
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, limit)
	}
	return nil, nil
}

type MockTransactionRepository struct {
	ListRecentFunc func(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error)
	lastLimit      int
}

func (m *MockTransactionRepository) UpsertBatch(ctx context.Context, params []transaction.UpsertParams) (int, error) {
	return len(params), nil
}

func (m *MockTransactionRepository) ListRecentByUserID(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
	m.lastLimit = limit
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, userID, limit)
	}
	return nil, nil
}

func (m *MockTransactionRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func strPtr(s string) *string { return &s }

func balance(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleAccounts() []*account.Account {
	return []*account.Account{
		{ID: "a1", Name: "Plaid Checking", Mask: strPtr("0000"), CurrentBalance: balance("110"), Currency: strPtr("USD")},
		{ID: "a2", Name: "", Mask: nil, CurrentBalance: balance("0"), Currency: nil},
		{ID: "a3", Name: "Plaid Credit Card", Mask: strPtr("3333"), Currency: strPtr("USD")},
	}
}

func sampleTransactions() []*transaction.Transaction {
	return []*transaction.Transaction{
		{ID: "t1", Name: "Uber", Amount: decimal.RequireFromString("5.4"), Currency: strPtr("USD"),
			Category: strPtr("Travel > Taxi"), Date: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "t2", Name: "Payroll", Amount: decimal.RequireFromString("-2500"),
			Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
}

func TestBuild(t *testing.T) {
	accounts := &MockAccountRepository{ListByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
		return sampleAccounts(), nil
	}}
	txs := &MockTransactionRepository{ListRecentFunc: func(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
		return sampleTransactions(), nil
	}}

	got := NewContextBuilder(accounts, txs, zerolog.Nop()).Build(context.Background(), "u1")

	want := strings.Join([]string{
		"Accounts (top 3):",
		"- Plaid Checking ****0000: 110 USD",
		"- Account: 0",
		"- Plaid Credit Card ****3333: unknown USD",
		"",
		"Recent transactions (up to 5):",
		"- 2024-01-20 • Uber • 5.4 USD (Travel > Taxi)",
		"- 2024-01-15 • Payroll • -2500",
	}, "\n")
	assert.Equal(t, want, got)
	assert.Equal(t, MaxAccounts, accounts.lastLimit)
	assert.Equal(t, MaxTransactions, txs.lastLimit)
}

func TestBuildEmpty(t *testing.T) {
	called := false
	accounts := &MockAccountRepository{ListByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
		called = true
		return nil, nil
	}}
	b := NewContextBuilder(accounts, &MockTransactionRepository{}, zerolog.Nop())

	assert.Equal(t, "", b.Build(context.Background(), ""))
	assert.False(t, called, "empty user must not touch the store")

	assert.Equal(t, "", b.Build(context.Background(), "u-without-data"))
}

func TestBuildOmitsSections(t *testing.T) {
	t.Run("no accounts", func(t *testing.T) {
		txs := &MockTransactionRepository{ListRecentFunc: func(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
			return sampleTransactions()[:1], nil
		}}
		got := NewContextBuilder(&MockAccountRepository{}, txs, zerolog.Nop()).Build(context.Background(), "u1")

		assert.Equal(t, "Recent transactions (up to 5):\n- 2024-01-20 • Uber • 5.4 USD (Travel > Taxi)", got)
	})

	t.Run("no transactions", func(t *testing.T) {
		accounts := &MockAccountRepository{ListByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
			return sampleAccounts()[:1], nil
		}}
		got := NewContextBuilder(accounts, &MockTransactionRepository{}, zerolog.Nop()).Build(context.Background(), "u1")

		assert.Equal(t, "Accounts (top 3):\n- Plaid Checking ****0000: 110 USD", got)
	})

	t.Run("read failure drops only that section", func(t *testing.T) {
		accounts := &MockAccountRepository{ListByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
			return nil, errors.New("connection reset")
		}}
		txs := &MockTransactionRepository{ListRecentFunc: func(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
			return sampleTransactions()[1:], nil
		}}
		got := NewContextBuilder(accounts, txs, zerolog.Nop()).Build(context.Background(), "u1")

		assert.Equal(t, "Recent transactions (up to 5):\n- 2024-01-15 • Payroll • -2500", got)
	})

	t.Run("both reads fail", func(t *testing.T) {
		failing := errors.New("db down")
		accounts := &MockAccountRepository{ListByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
			return nil, failing
		}}
		txs := &MockTransactionRepository{ListRecentFunc: func(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
			return nil, failing
		}}
		assert.Equal(t, "", NewContextBuilder(accounts, txs, zerolog.Nop()).Build(context.Background(), "u1"))
	})
}

func TestBuildBounds(t *testing.T) {
	var many []*account.Account
	for i := range 10 {
		many = append(many, &account.Account{ID: fmt.Sprint(i), Name: fmt.Sprintf("Acct %d", i), CurrentBalance: balance("1")})
	}
	var manyTxs []*transaction.Transaction
	for i := range 10 {
		manyTxs = append(manyTxs, &transaction.Transaction{ID: fmt.Sprint(i), Name: "x", Amount: decimal.NewFromInt(1),
			Date: time.Date(2024, 1, 10-i%10+1, 0, 0, 0, 0, time.UTC)})
	}

	// repositories that ignore the limit must still not overflow the summary
	accounts := &MockAccountRepository{ListByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
		return many, nil
	}}
	txs := &MockTransactionRepository{ListRecentFunc: func(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
		return manyTxs, nil
	}}
	got := NewContextBuilder(accounts, txs, zerolog.Nop()).Build(context.Background(), "u1")

	lines := strings.Split(got, "\n")
	var accountLines, txLines int
	section := ""
	for _, l := range lines {
		switch {
		case l == accountsHeader || l == transactionsHeader:
			section = l
		case strings.HasPrefix(l, "- ") && section == accountsHeader:
			accountLines++
		case strings.HasPrefix(l, "- ") && section == transactionsHeader:
			txLines++
		}
	}
	assert.Equal(t, MaxAccounts, accountLines)
	assert.Equal(t, MaxTransactions, txLines)
}
