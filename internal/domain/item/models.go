package item

import (
	"errors"
	"time"
)

// ErrItemNotFound is returned when a user has no linked connection.
var ErrItemNotFound = errors.New("item not found")

// Item is a user's single connection to the aggregator. A user has at most
// one Item; linking again replaces it.
type Item struct {
	UserID      string    `json:"userId"`
	ItemID      string    `json:"itemId"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UpsertParams contains parameters for creating or replacing a user's Item
type UpsertParams struct {
	UserID      string
	ItemID      string
	AccessToken string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.UserID == "" {
		return errors.New("user ID is required")
	}
	if p.ItemID == "" {
		return errors.New("item ID is required")
	}
	if p.AccessToken == "" {
		return errors.New("access token is required")
	}
	return nil
}
