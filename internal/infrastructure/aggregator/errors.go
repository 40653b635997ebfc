package aggregator

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types and codes reported by the aggregator, plus the ones this
// client synthesizes for failures that never produced an API response.
const (
	TypeAPIError          = "API_ERROR"
	TypeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	TypeItemError         = "ITEM_ERROR"
	TypeInvalidRequest    = "INVALID_REQUEST"
	TypeInvalidInput      = "INVALID_INPUT"
	TypeNetworkError      = "NETWORK_ERROR"
	TypeClientError       = "CLIENT_ERROR"

	CodeProductNotReady    = "PRODUCT_NOT_READY"
	CodeInvalidAccessToken = "INVALID_ACCESS_TOKEN"
	CodeInvalidPublicToken = "INVALID_PUBLIC_TOKEN"
	CodeItemLoginRequired  = "ITEM_LOGIN_REQUIRED"
	CodeItemNotFound       = "ITEM_NOT_FOUND"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeTimeout            = "TIMEOUT"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeInvalidResponse    = "INVALID_RESPONSE"
	CodePaginationLimit    = "PAGINATION_LIMIT_EXCEEDED"
)

// APIError describes a failed aggregator call. StatusCode is 0 when no HTTP
// response was received.
type APIError struct {
	StatusCode     int    `json:"-"`
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`

	cause error
}

func (e *APIError) Error() string {
	msg := e.ErrorMessage
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("aggregator error (status %d): %s %s: %s", e.StatusCode, e.ErrorType, e.ErrorCode, msg)
	}
	return fmt.Sprintf("aggregator error: %s %s: %s", e.ErrorType, e.ErrorCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Transient reports whether retrying the same call may succeed.
func (e *APIError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.ErrorType == TypeRateLimitExceeded:
		return true
	case e.ErrorCode == CodeProductNotReady:
		return true
	case e.ErrorType == TypeAPIError:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.ErrorType == TypeNetworkError && e.ErrorCode == CodeTimeout:
		return true
	}
	return false
}

// IsTransient reports whether err carries a transient *APIError.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return false
}
