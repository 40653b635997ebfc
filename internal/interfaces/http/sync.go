package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"finsight/internal/domain/finsync"
)

type SyncService interface {
	Resync(ctx context.Context, accessToken, userID string, w finsync.Window) (finsync.Counts, error)
	Status(ctx context.Context, userID string) (*finsync.Status, error)
}

type SyncHandler struct {
	svc SyncService
	log zerolog.Logger
	now func() time.Time
}

func NewSyncHandler(svc SyncService, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{svc: svc, log: log, now: time.Now}
}

type SyncRequest struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type StatusResponse struct {
	ItemID   string  `json:"item_id,omitempty"`
	LinkedAt *string `json:"linked_at"`
	LastRun  any     `json:"last_run"`
}

// HandleSync runs a foreground resync: POST /sync
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	window, err := finsync.ParseWindow(req.StartDate, req.EndDate, h.now())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	counts, err := h.svc.Resync(r.Context(), req.AccessToken, req.UserID, window)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeResult(w, counts)
}

// HandleStatus reports the user's connection state: GET /status?user_id=
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp := StatusResponse{ItemID: st.ItemID}
	if st.LinkedAt != nil {
		linked := st.LinkedAt.UTC().Format(time.RFC3339)
		resp.LinkedAt = &linked
	}
	if st.LastRun != nil {
		resp.LastRun = st.LastRun
	}

	connected := st.Connected
	writeJSON(w, http.StatusOK, envelope{OK: true, Connected: &connected, Data: resp})
}
