package transaction

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID           string          `json:"transactionId"` // aggregator's transaction_id
	UserID       string          `json:"userId"`
	AccountID    string          `json:"accountId"`
	Name         string          `json:"name"`
	MerchantName *string         `json:"merchantName,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     *string         `json:"currency"`
	Category     *string         `json:"category"` // flattened, see FlattenCategory
	Date         time.Time       `json:"date"`
	Pending      bool            `json:"pending"`
	RawPayload   json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// UpsertParams is used for syncing transactions from the aggregator
type UpsertParams struct {
	ID           string // aggregator's transaction_id (natural key)
	UserID       string
	AccountID    string
	Name         string
	MerchantName *string
	Amount       decimal.Decimal
	Currency     *string
	Category     *string
	Date         time.Time
	Pending      bool
	RawPayload   json.RawMessage
}

func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("transaction ID is required for upsert")
	}
	if p.UserID == "" {
		return errors.New("user ID is required for upsert")
	}
	if p.AccountID == "" {
		return errors.New("account ID is required for upsert")
	}
	if p.Date.IsZero() {
		return errors.New("transaction date is required")
	}
	return nil
}
