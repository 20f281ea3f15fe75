package events

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/jobdone/core/logger"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/core/store"
)

// DefaultLimit is the number of events returned when no limit is given.
const DefaultLimit = 20

type handler struct {
	broker Broker
	log    logger.Logger
}

type dockSetView struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Docks []int  `json:"docks"`
}

type submitRequest struct {
	DockSetID       int    `json:"dockSetId"`
	DockNo          int    `json:"dockNo"`
	ClientRequestID string `json:"clientRequestId"`
}

type ackRequest struct {
	ClientRequestID string `json:"clientRequestId"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listDockSets(w http.ResponseWriter, _ *http.Request) {
	sets := h.broker.Catalog().List()
	out := make([]dockSetView, 0, len(sets))
	for _, s := range sets {
		out = append(out, dockSetView{ID: s.ID, Name: s.Name, Docks: s.Docks()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) listDocks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "dock set id must be an integer")
		return
	}
	set, ok := h.broker.Catalog().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrUnknownDockSet.Error())
		return
	}
	writeJSON(w, http.StatusOK, set.Docks())
}

func (h *handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, store.MaxRecent)
	}
	events, err := h.broker.SyncRecent(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	rows := make([]model.Record, 0, len(events))
	for _, ev := range events {
		rows = append(rows, model.ToRecord(ev))
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := h.broker.SubmitCompletion(r.Context(), req.DockSetID, req.DockNo, req.ClientRequestID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	res, err := h.broker.Acknowledge(r.Context(), chi.URLParam(r, "id"), req.ClientRequestID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidDock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Errorf("request failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
