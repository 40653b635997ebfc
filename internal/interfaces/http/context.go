package http

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"finsight/internal/shared/apperr"
)

type ContextBuilder interface {
	Build(ctx context.Context, userID string) string
}

type ContextHandler struct {
	builder ContextBuilder
	log     zerolog.Logger
}

func NewContextHandler(builder ContextBuilder, log zerolog.Logger) *ContextHandler {
	return &ContextHandler{builder: builder, log: log}
}

// HandleContext renders the prompt context for a user: GET /context?user_id=
func (h *ContextHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, r, h.log, apperr.Validation("user_id"))
		return
	}
	writeData(w, map[string]string{"context": h.builder.Build(r.Context(), userID)})
}
