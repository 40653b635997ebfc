package aggregator

import (
	"context"
	"time"
)

// ClientInterface defines the methods required from the aggregator API client
type ClientInterface interface {
	CreateLinkToken(ctx context.Context, userID string) (*LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error)
	FetchAccounts(ctx context.Context, accessToken string) ([]Account, error)
	FetchTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]Transaction, error)
	CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error)
}
