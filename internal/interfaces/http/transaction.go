package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"finsight/internal/domain/transaction"
	"finsight/internal/shared/apperr"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

type TransactionService interface {
	Transactions(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error)
}

type TransactionHandler struct {
	svc TransactionService
	log zerolog.Logger
}

func NewTransactionHandler(svc TransactionService, log zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, log: log}
}

type TransactionResponse struct {
	TransactionID string      `json:"transaction_id"`
	AccountID     string      `json:"account_id"`
	Name          string      `json:"name"`
	MerchantName  *string     `json:"merchant_name"`
	Amount        json.Number `json:"amount"`
	Currency      *string     `json:"currency"`
	Category      *string     `json:"category"`
	Date          string      `json:"date"`
	Pending       bool        `json:"pending"`
}

// HandleListTransactions returns recent transactions: GET /transactions?user_id=&limit=
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultTransactionLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTransactionLimit {
			writeError(w, r, h.log, apperr.Invalid("limit", errors.New("must be between 1 and 500")))
			return
		}
		limit = n
	}

	txs, err := h.svc.Transactions(r.Context(), q.Get("user_id"), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, TransactionResponse{
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			Name:          tx.Name,
			MerchantName:  tx.MerchantName,
			Amount:        json.Number(tx.Amount.String()),
			Currency:      tx.Currency,
			Category:      tx.Category,
			Date:          tx.Date.Format(time.DateOnly),
			Pending:       tx.Pending,
		})
	}
	writeData(w, response)
}
