package handlers

import (
	"net/http"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/services"
)

const idempotencyHeader = "Idempotency-Key"

type MilestoneHandler struct {
	Service *services.MilestoneService
}

func NewMilestoneHandler(service *services.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{Service: service}
}

func (h *MilestoneHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	milestones, err := h.Service.List(r.Context(), models.MilestoneFilter{
		Project: q.Get("project"),
		Type:    q.Get("type"),
		Status:  q.Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func (h *MilestoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.MilestoneInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	milestone, err := h.Service.Create(r.Context(), in, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, milestone)
}

func (h *MilestoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	milestone, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, milestone)
}

func (h *MilestoneHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch models.MilestonePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	milestone, err := h.Service.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, milestone)
}

func (h *MilestoneHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Milestone deleted successfully")
}
