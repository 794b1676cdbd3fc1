package api

import (
	"context"
	"net/http"

	"github.com/MikeSquared-Agency/Territoires/internal/snapshot"
)

// Reloader swaps in a freshly loaded snapshot.
type Reloader interface {
	Reload(ctx context.Context, trigger string) (*snapshot.Snapshot, error)
}

type AdminHandler struct {
	reloader Reloader
}

func NewAdminHandler(r Reloader) *AdminHandler {
	return &AdminHandler{reloader: r}
}

// Reload re-reads datasets and reference statistics from the store. The
// previous snapshot keeps serving if the reload fails.
// POST /api/v1/admin/reload
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.reloader.Reload(r.Context(), snapshot.TriggerAdmin)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}
