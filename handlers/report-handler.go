package handlers

import (
	"net/http"
	"strconv"

	"github.com/nls08/NLS-Portal-sub001/services"
)

// ReportHandler serves the derived, read-only views.
type ReportHandler struct {
	Dashboard *services.DashboardService
	Delivery  *services.DeliveryService
	Finance   *services.FinanceService
}

func NewReportHandler(dashboard *services.DashboardService, delivery *services.DeliveryService, finance *services.FinanceService) *ReportHandler {
	return &ReportHandler{Dashboard: dashboard, Delivery: delivery, Finance: finance}
}

func (h *ReportHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Dashboard.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ReportHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	upcoming := false
	if raw := r.URL.Query().Get("upcoming"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, &services.ValidationError{
				Message: "upcoming must be a boolean",
				Fields:  map[string]string{"upcoming": "must be a boolean"},
			})
			return
		}
		upcoming = v
	}
	deliveries, err := h.Delivery.List(r.Context(), upcoming)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func (h *ReportHandler) FinanceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Finance.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
