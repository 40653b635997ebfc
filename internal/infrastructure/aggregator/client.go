package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"finsight/internal/shared/apperr"
)

const (
	linkTokenPath        = "/link/token/create"
	exchangePath         = "/item/public_token/exchange"
	accountsPath         = "/accounts/get"
	transactionsPath     = "/transactions/get"
	sandboxPublicToken   = "/sandbox/public_token/create"
	defaultTimeout       = 30 * time.Second
	defaultPageSize      = 500
	defaultMaxPages      = 40
	defaultInstitutionID = "ins_109508"
	maxErrorBody         = 512
)

var environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

var tracer = otel.Tracer("finsight.aggregator")

// Config holds the aggregator client settings. Zero values fall back to
// sensible defaults in NewClient.
type Config struct {
	Env          string
	BaseURL      string // overrides the URL derived from Env
	ClientID     string
	Secret       string
	ClientName   string
	Products     []string
	CountryCodes []string
	Language     string
	Timeout      time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	PageSize     int
	MaxPages     int
	RateLimit    float64 // requests per second, <= 0 disables limiting
	RateBurst    int
}

// Client handles communication with the aggregator API
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
	limiter    *rate.Limiter
	log        zerolog.Logger
	requests   metric.Int64Counter
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new aggregator API client
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		var ok bool
		if baseURL, ok = environments[cfg.Env]; !ok {
			return nil, fmt.Errorf("unknown aggregator environment %q", cfg.Env)
		}
	}
	if cfg.ClientID == "" || cfg.Secret == "" {
		return nil, errors.New("aggregator client id and secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > maxAttempts {
		cfg.MaxAttempts = maxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	requests, err := otel.Meter("finsight/aggregator").Int64Counter(
		"aggregator.request.total",
		metric.WithDescription("Aggregator API requests by endpoint and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
		log:        log.With().Str("component", "aggregator").Logger(),
		requests:   requests,
	}, nil
}

// CreateLinkToken issues a link token bound to the given user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*LinkToken, error) {
	req := linkTokenRequest{
		credentials:  c.credentials(),
		ClientName:   c.cfg.ClientName,
		User:         linkTokenUser{ClientUserID: userID},
		Products:     c.cfg.Products,
		CountryCodes: c.cfg.CountryCodes,
		Language:     c.cfg.Language,
	}

	var out LinkToken
	if err := c.post(ctx, linkTokenPath, req, &out); err != nil {
		return nil, apperr.Upstream("aggregator.CreateLinkToken", err)
	}
	return &out, nil
}

// ExchangePublicToken trades a one-time public token for an access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error) {
	req := exchangeRequest{credentials: c.credentials(), PublicToken: publicToken}

	var out Exchange
	if err := c.post(ctx, exchangePath, req, &out); err != nil {
		return nil, apperr.Upstream("aggregator.ExchangePublicToken", err)
	}
	return &out, nil
}

// FetchAccounts returns every account behind the access token.
func (c *Client) FetchAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	req := accountsRequest{credentials: c.credentials(), AccessToken: accessToken}

	var out accountsResponse
	if err := c.post(ctx, accountsPath, req, &out); err != nil {
		return nil, apperr.Upstream("aggregator.FetchAccounts", err)
	}
	return out.Accounts, nil
}

// FetchTransactions pages through the transactions dated within [start, end].
// Paging stops on a short page or once total_transactions have been read.
func (c *Client) FetchTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]Transaction, error) {
	const op = "aggregator.FetchTransactions"

	var all []Transaction
	for page := 0; ; page++ {
		if page >= c.cfg.MaxPages {
			return nil, apperr.Upstream(op, &APIError{
				ErrorType:    TypeClientError,
				ErrorCode:    CodePaginationLimit,
				ErrorMessage: fmt.Sprintf("more than %d pages of %d transactions", c.cfg.MaxPages, c.cfg.PageSize),
			})
		}

		req := transactionsRequest{
			credentials: c.credentials(),
			AccessToken: accessToken,
			StartDate:   start.Format(time.DateOnly),
			EndDate:     end.Format(time.DateOnly),
			Options:     transactionsOptions{Count: c.cfg.PageSize, Offset: len(all)},
		}

		var out transactionsResponse
		if err := c.post(ctx, transactionsPath, req, &out); err != nil {
			return nil, apperr.Upstream(op, err)
		}
		all = append(all, out.Transactions...)

		if len(out.Transactions) < c.cfg.PageSize || len(all) >= out.TotalTransactions {
			c.log.Debug().
				Int("pages", page+1).
				Int("transactions", len(all)).
				Int("total", out.TotalTransactions).
				Msg("Fetched transactions")
			return all, nil
		}
	}
}

// CreateSandboxPublicToken creates a public token for a test institution.
// Only the sandbox environment accepts it.
func (c *Client) CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error) {
	if institutionID == "" {
		institutionID = defaultInstitutionID
	}
	if len(products) == 0 {
		products = c.cfg.Products
	}
	req := sandboxTokenRequest{
		credentials:     c.credentials(),
		InstitutionID:   institutionID,
		InitialProducts: products,
	}

	var out sandboxTokenResponse
	if err := c.post(ctx, sandboxPublicToken, req, &out); err != nil {
		return "", apperr.Upstream("aggregator.CreateSandboxPublicToken", err)
	}
	return out.PublicToken, nil
}

func (c *Client) credentials() credentials {
	return credentials{ClientID: c.cfg.ClientID, Secret: c.cfg.Secret}
}

// post sends body to path, retrying transient failures, and decodes the
// success response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, span := tracer.Start(ctx, "aggregator "+path, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("aggregator.endpoint", path)))
	defer span.End()

	attempts, err := c.withRetry(ctx, path, func(ctx context.Context) error {
		err := c.do(ctx, path, payload, out)
		c.requests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", path),
			attribute.String("outcome", outcome(err)),
		))
		return err
	})
	span.SetAttributes(attribute.Int("aggregator.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// do performs a single attempt bounded by the configured timeout.
func (c *Client) do(ctx context.Context, path string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.ErrorType == "" {
			apiErr = &APIError{
				ErrorType:    TypeAPIError,
				ErrorCode:    CodeInvalidResponse,
				ErrorMessage: truncate(string(body)),
			}
			if resp.StatusCode < 500 {
				apiErr.ErrorType = TypeInvalidRequest
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			StatusCode:   resp.StatusCode,
			ErrorType:    TypeClientError,
			ErrorCode:    CodeInvalidResponse,
			ErrorMessage: "failed to decode response",
			cause:        err,
		}
	}
	return nil
}

// networkError converts a transport failure into an *APIError. Timeouts of
// a single attempt are retryable; cancellation of the caller's ctx is not.
func networkError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	code := CodeConnectionFailed
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = CodeTimeout
	}
	return &APIError{ErrorType: TypeNetworkError, ErrorCode: code, cause: err}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsTransient(err):
		return "transient"
	default:
		return "terminal"
	}
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
