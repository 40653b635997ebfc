package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finsight/internal/domain/account"
)

type AccountService interface {
	Accounts(ctx context.Context, userID string) ([]*account.Account, error)
}

type AccountHandler struct {
	svc AccountService
	log zerolog.Logger
}

func NewAccountHandler(svc AccountService, log zerolog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, log: log}
}

// AccountResponse is the wire format of a stored account. Balances are
// exact decimals and null when the aggregator did not report them.
type AccountResponse struct {
	AccountID        string       `json:"account_id"`
	ItemID           string       `json:"item_id,omitempty"`
	Name             string       `json:"name"`
	OfficialName     *string      `json:"official_name"`
	Type             string       `json:"type"`
	Subtype          *string      `json:"subtype"`
	Mask             *string      `json:"mask"`
	CurrentBalance   *json.Number `json:"current_balance"`
	AvailableBalance *json.Number `json:"available_balance"`
	Currency         *string      `json:"currency"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
}

// HandleListAccounts returns the user's stored accounts: GET /accounts?user_id=
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.Accounts(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, toAccountResponse(acc))
	}
	writeData(w, response)
}

func toAccountResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		AccountID:        acc.ID,
		ItemID:           acc.ItemID,
		Name:             acc.Name,
		OfficialName:     acc.OfficialName,
		Type:             acc.Type,
		Subtype:          acc.Subtype,
		Mask:             acc.Mask,
		CurrentBalance:   nullNumber(acc.CurrentBalance),
		AvailableBalance: nullNumber(acc.AvailableBalance),
		Currency:         acc.Currency,
		CreatedAt:        acc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        acc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func nullNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}
