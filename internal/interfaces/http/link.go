package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"finsight/internal/domain/finsync"
	"finsight/internal/infrastructure/aggregator"
)

// LinkService is the part of the sync engine the link endpoints need.
type LinkService interface {
	CreateLinkToken(ctx context.Context, userID string) (*aggregator.LinkToken, error)
	LinkAndBackfill(ctx context.Context, publicToken, userID string) (*finsync.LinkResult, error)
	SandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error)
}

type LinkHandler struct {
	svc LinkService
	log zerolog.Logger
}

func NewLinkHandler(svc LinkService, log zerolog.Logger) *LinkHandler {
	return &LinkHandler{svc: svc, log: log}
}

type LinkTokenRequest struct {
	UserID string `json:"user_id"`
}

type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

type ExchangeRequest struct {
	PublicToken string `json:"public_token"`
	UserID      string `json:"user_id"`
}

type SandboxPublicTokenRequest struct {
	InstitutionID string   `json:"institution_id"`
	Products      []string `json:"products"`
}

// HandleLinkToken issues a link token: POST /link-token
func (h *LinkHandler) HandleLinkToken(w http.ResponseWriter, r *http.Request) {
	var req LinkTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	tok, err := h.svc.CreateLinkToken(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp := LinkTokenResponse{LinkToken: tok.LinkToken, RequestID: tok.RequestID}
	if !tok.Expiration.IsZero() {
		resp.Expiration = tok.Expiration.UTC().Format(time.RFC3339)
	}
	writeData(w, resp)
}

// HandleExchange links the user's account and starts the backfill: POST /exchange
func (h *LinkHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	res, err := h.svc.LinkAndBackfill(r.Context(), req.PublicToken, req.UserID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeResult(w, res)
}

// HandleSandboxPublicToken creates a test public token: POST /sandbox/public-token
func (h *LinkHandler) HandleSandboxPublicToken(w http.ResponseWriter, r *http.Request) {
	var req SandboxPublicTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	tok, err := h.svc.SandboxPublicToken(r.Context(), req.InstitutionID, req.Products)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, map[string]string{"public_token": tok})
}
