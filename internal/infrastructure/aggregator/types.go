package aggregator

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LinkToken is a short-lived token used by the client-side widget to start
// the connection flow.
type LinkToken struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

// Exchange is the result of trading a public token for a long-lived
// access token.
type Exchange struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// Account represents an account from the aggregator API
type Account struct {
	AccountID    string   `json:"account_id"`
	Balances     Balances `json:"balances"`
	Mask         *string  `json:"mask"`
	Name         string   `json:"name"`
	OfficialName *string  `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      *string  `json:"subtype"`
}

// Balances holds the reported balances. Any of them may be null.
type Balances struct {
	Available              decimal.NullDecimal `json:"available"`
	Current                decimal.NullDecimal `json:"current"`
	Limit                  decimal.NullDecimal `json:"limit"`
	IsoCurrencyCode        *string             `json:"iso_currency_code"`
	UnofficialCurrencyCode *string             `json:"unofficial_currency_code"`
}

// Transaction represents a transaction from the aggregator API. Raw holds
// the exact JSON object the aggregator sent.
type Transaction struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	Name            string          `json:"name"`
	MerchantName    *string         `json:"merchant_name"`
	Amount          decimal.Decimal `json:"amount"`
	IsoCurrencyCode *string         `json:"iso_currency_code"`
	Category        []string        `json:"category"`
	Date            string          `json:"date"` // YYYY-MM-DD
	Pending         bool            `json:"pending"`
	Raw             json.RawMessage `json:"-"`
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Transaction(p)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

type credentials struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type linkTokenRequest struct {
	credentials
	ClientName   string        `json:"client_name"`
	User         linkTokenUser `json:"user"`
	Products     []string      `json:"products"`
	CountryCodes []string      `json:"country_codes"`
	Language     string        `json:"language"`
}

type exchangeRequest struct {
	credentials
	PublicToken string `json:"public_token"`
}

type accountsRequest struct {
	credentials
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Accounts  []Account `json:"accounts"`
	RequestID string    `json:"request_id"`
}

type transactionsOptions struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

type transactionsRequest struct {
	credentials
	AccessToken string              `json:"access_token"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Options     transactionsOptions `json:"options"`
}

type transactionsResponse struct {
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	RequestID         string        `json:"request_id"`
}

type sandboxTokenRequest struct {
	credentials
	InstitutionID   string   `json:"institution_id"`
	InitialProducts []string `json:"initial_products"`
}

type sandboxTokenResponse struct {
	PublicToken string `json:"public_token"`
	RequestID   string `json:"request_id"`
}
