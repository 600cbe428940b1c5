package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chronodb/oplogd/apply"
)

// Handler wires the admin endpoints to the driver and ghost tracker.
type Handler struct {
	Driver         *apply.Driver
	Ghosts         *apply.Tracker
	Prober         apply.CandidateProber
	Source         apply.OplogSource
	WeBuildIndexes bool
}

type statusResponse struct {
	State       string `json:"state"`
	LastApplied string `json:"lastApplied"`
	MinValid    string `json:"minValid,omitempty"`
	SyncTarget  string `json:"syncTarget,omitempty"`
	GhostCount  int    `json:"ghostCount"`
}

// Status implements GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:       h.Driver.CurrentState().String(),
		LastApplied: h.Driver.LastApplied().String(),
		GhostCount:  h.Ghosts.Len(),
	}
	if rec, found, err := h.Driver.MinValid(); err == nil && found {
		resp.MinValid = rec.Ts.String()
	}
	if target, ok := h.Driver.SyncTarget(); ok {
		resp.SyncTarget = target
	}
	writeJSON(w, http.StatusOK, resp)
}

type forceSyncFromRequest struct {
	Host string `json:"host"`
}

// ForceSyncFrom implements POST /admin/forceSyncFrom.
func (h *Handler) ForceSyncFrom(w http.ResponseWriter, r *http.Request) {
	var req forceSyncFromRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apply.ForceSyncResult{OK: false, ErrMsg: "invalid request body"})
		return
	}
	if req.Host == "" {
		writeJSON(w, http.StatusBadRequest, apply.ForceSyncResult{OK: false, ErrMsg: "host is required"})
		return
	}

	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res := apply.ForceSyncFrom(ctx, h.Prober, h.Source, req.Host, h.WeBuildIndexes, h.Driver.LastApplied())
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
