package finsync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finsight/internal/domain/account"
	"finsight/internal/domain/transaction"
	"finsight/internal/infrastructure/aggregator"
)

func currency(code *string) *string {
	if code == nil {
		return nil
	}
	c := strings.TrimSpace(*code)
	if c == "" {
		return nil
	}
	return &c
}

// normalizeAccount maps an aggregator account onto the stored shape. Null
// balances stay null.
func normalizeAccount(userID, itemID string, a aggregator.Account) account.UpsertParams {
	return account.UpsertParams{
		ID:               a.AccountID,
		UserID:           userID,
		ItemID:           itemID,
		Name:             a.Name,
		OfficialName:     a.OfficialName,
		Type:             a.Type,
		Subtype:          a.Subtype,
		Mask:             a.Mask,
		CurrentBalance:   a.Balances.Current,
		AvailableBalance: a.Balances.Available,
		Currency:         currency(a.Balances.IsoCurrencyCode),
	}
}

func normalizeAccounts(userID, itemID string, accounts []aggregator.Account) []account.UpsertParams {
	params := make([]account.UpsertParams, 0, len(accounts))
	for _, a := range accounts {
		params = append(params, normalizeAccount(userID, itemID, a))
	}
	return dedupeByID(params, func(p account.UpsertParams) string { return p.ID })
}

func normalizeTransaction(userID string, t aggregator.Transaction) (transaction.UpsertParams, error) {
	date, err := time.Parse(time.DateOnly, t.Date)
	if err != nil {
		return transaction.UpsertParams{}, fmt.Errorf("transaction %s has invalid date %q", t.TransactionID, t.Date)
	}

	raw := t.Raw
	if len(raw) == 0 {
		if raw, err = json.Marshal(t); err != nil {
			return transaction.UpsertParams{}, fmt.Errorf("failed to encode transaction %s: %w", t.TransactionID, err)
		}
	}

	return transaction.UpsertParams{
		ID:           t.TransactionID,
		UserID:       userID,
		AccountID:    t.AccountID,
		Name:         t.Name,
		MerchantName: t.MerchantName,
		Amount:       t.Amount,
		Currency:     currency(t.IsoCurrencyCode),
		Category:     transaction.FlattenCategory(t.Category),
		Date:         date,
		Pending:      t.Pending,
		RawPayload:   raw,
	}, nil
}

func normalizeTransactions(userID string, txs []aggregator.Transaction) ([]transaction.UpsertParams, error) {
	params := make([]transaction.UpsertParams, 0, len(txs))
	for _, t := range txs {
		p, err := normalizeTransaction(userID, t)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return dedupeByID(params, func(p transaction.UpsertParams) string { return p.ID }), nil
}

// dedupeByID keeps one entry per id, in first-seen order, holding the last
// version seen. Pages can overlap when the upstream list shifts mid-fetch.
func dedupeByID[T any](items []T, id func(T) string) []T {
	index := make(map[string]int, len(items))
	out := items[:0]
	for _, it := range items {
		if i, ok := index[id(it)]; ok {
			out[i] = it
			continue
		}
		index[id(it)] = len(out)
		out = append(out, it)
	}
	return out
}
