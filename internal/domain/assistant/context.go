// Package assistant renders a user's stored financial data as a short
// plain-text summary for use as model prompt context.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"finsight/internal/domain/account"
	"finsight/internal/domain/transaction"
)

const (
	MaxAccounts     = 3
	MaxTransactions = 5

	accountsHeader     = "Accounts (top 3):"
	transactionsHeader = "Recent transactions (up to 5):"
)

// ContextBuilder reads from the store only; it never calls the aggregator.
type ContextBuilder struct {
	accounts     account.Repository
	transactions transaction.Repository
	log          zerolog.Logger
}

func NewContextBuilder(accounts account.Repository, transactions transaction.Repository, log zerolog.Logger) *ContextBuilder {
	return &ContextBuilder{
		accounts:     accounts,
		transactions: transactions,
		log:          log.With().Str("component", "assistant").Logger(),
	}
}

// Build returns the summary for userID, or "" when there is nothing to say.
// A section whose read fails is left out.
func (b *ContextBuilder) Build(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}

	var (
		accounts []*account.Account
		txs      []*transaction.Transaction
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		if accounts, err = b.accounts.ListByUserID(ctx, userID, MaxAccounts); err != nil {
			b.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read accounts for context")
			accounts = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if txs, err = b.transactions.ListRecentByUserID(ctx, userID, MaxTransactions); err != nil {
			b.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read transactions for context")
			txs = nil
		}
		return nil
	})
	_ = g.Wait()

	var sections []string
	if s := renderAccounts(accounts); s != "" {
		sections = append(sections, s)
	}
	if s := renderTransactions(txs); s != "" {
		sections = append(sections, s)
	}
	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func renderAccounts(accounts []*account.Account) string {
	if len(accounts) > MaxAccounts {
		accounts = accounts[:MaxAccounts]
	}
	if len(accounts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(accountsHeader)
	for _, a := range accounts {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			name = "Account"
		}
		b.WriteString("\n- ")
		b.WriteString(name)
		if a.Mask != nil && *a.Mask != "" {
			b.WriteString(" ****")
			b.WriteString(*a.Mask)
		}
		b.WriteString(": ")
		if a.CurrentBalance.Valid {
			b.WriteString(a.CurrentBalance.Decimal.String())
		} else {
			b.WriteString("unknown")
		}
		if a.Currency != nil && *a.Currency != "" {
			b.WriteString(" ")
			b.WriteString(*a.Currency)
		}
	}
	return b.String()
}

func renderTransactions(txs []*transaction.Transaction) string {
	if len(txs) > MaxTransactions {
		txs = txs[:MaxTransactions]
	}
	if len(txs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(transactionsHeader)
	for _, t := range txs {
		b.WriteString("\n- ")
		b.WriteString(t.Date.Format(time.DateOnly))
		b.WriteString(" • ")
		b.WriteString(t.Name)
		b.WriteString(" • ")
		b.WriteString(t.Amount.String())
		if t.Currency != nil && *t.Currency != "" {
			b.WriteString(" ")
			b.WriteString(*t.Currency)
		}
		if t.Category != nil && *t.Category != "" {
			b.WriteString(" (")
			b.WriteString(*t.Category)
			b.WriteString(")")
		}
	}
	return b.String()
}
