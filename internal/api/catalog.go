package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xtrntr/carauction/internal/catalog"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/store"
)

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

// pageFrom reads ?page= and ?limit=; missing or malformed values fall back to defaults
func pageFrom(r *http.Request) store.Page {
	return store.NewPage(queryInt(r, "page"), queryInt(r, "limit"))
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	vehicles, err := h.catalog.ListVehicles(r.Context(), c, queryInt(r, "limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	v, err := h.catalog.GetVehicle(r.Context(), c, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in catalog.VehicleInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.catalog.CreateVehicle(r.Context(), c, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in catalog.VehicleInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.catalog.UpdateVehicle(r.Context(), c, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteVehicle(r.Context(), c, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAuctions lists auctions, optionally filtered by ?status=LIVE,ENDED
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var statuses []models.AuctionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, models.AuctionStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}

	auctions, err := h.catalog.ListAuctions(r.Context(), c, statuses, pageFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auctions)
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	view, err := h.catalog.GetAuction(r.Context(), c, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in catalog.AuctionInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.catalog.CreateAuction(r.Context(), c, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) UpdateAuction(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var patch catalog.AuctionPatch
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.catalog.UpdateAuction(r.Context(), c, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) MyBids(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	bids, err := h.catalog.MyBids(r.Context(), c, pageFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

func (h *Handler) WonAuctions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	auctions, err := h.catalog.WonAuctions(r.Context(), c, pageFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auctions)
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	list, err := h.catalog.Notifications(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkNotificationsRead marks {"id": ...} read, or everything with {"markAllRead": true}
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ID          string `json:"id"`
		MarkAllRead bool   `json:"markAllRead"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ID == "" && !req.MarkAllRead {
		h.writeError(w, r, errMissingNotification)
		return
	}

	id := req.ID
	if req.MarkAllRead {
		id = ""
	}
	if err := h.catalog.MarkRead(r.Context(), c, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
