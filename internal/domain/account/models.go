package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a snapshot of one external financial account. Balances are
// nullable: an invalid NullDecimal means the aggregator did not report it,
// which is different from a zero balance.
type Account struct {
	ID               string              `json:"accountId"`
	UserID           string              `json:"userId"`
	ItemID           string              `json:"itemId"`
	Name             string              `json:"name"`
	OfficialName     *string             `json:"officialName"`
	Type             string              `json:"type"`
	Subtype          *string             `json:"subtype"`
	Mask             *string             `json:"mask"`
	CurrentBalance   decimal.NullDecimal `json:"currentBalance"`
	AvailableBalance decimal.NullDecimal `json:"availableBalance"`
	Currency         *string             `json:"currency"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// UpsertParams contains parameters for upserting an account
type UpsertParams struct {
	ID               string
	UserID           string
	ItemID           string
	Name             string
	OfficialName     *string
	Type             string
	Subtype          *string
	Mask             *string
	CurrentBalance   decimal.NullDecimal
	AvailableBalance decimal.NullDecimal
	Currency         *string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("account ID is required for upsert")
	}
	if p.UserID == "" {
		return errors.New("user ID is required for upsert")
	}
	return nil
}
