package http

import (
	"net/http"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/go-chi/chi/v5/middleware"
)

type TrackingHandler struct {
	service interfaces.TrackingService
	logger  logger.Logger
}

func NewTrackingHandler(service interfaces.TrackingService, logger logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TrackingHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	result, err := h.service.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"order_id":             result.OrderID,
		"order_number":         result.OrderNumber,
		"current_status":       result.CurrentStatus,
		"updated_at":           result.UpdatedAt,
		"assigned_staff_id":    result.AssignedStaffID,
		"acceptance_deadline":  result.AcceptanceDeadline,
		"restaurant_confirmed": result.RestaurantConfirmed,
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *TrackingHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	history, err := h.service.GetOrderHistory(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, len(history))
	for i, log := range history {
		resp[i] = map[string]interface{}{
			"status":     log.Status,
			"timestamp":  log.ChangedAt,
			"changed_by": log.ChangedBy,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *TrackingHandler) GetStaffStatus(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("request_received", "Staff status requested", middleware.GetReqID(r.Context()), nil)

	staff, err := h.service.GetStaffStatus(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, len(staff))
	for i, s := range staff {
		resp[i] = map[string]interface{}{
			"staff_id":         s.StaffID,
			"name":             s.Name,
			"role":             s.Role,
			"availability":     s.Availability,
			"last_assigned_at": s.LastAssignedAt,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *TrackingHandler) GetDispatchState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetDispatchState(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	orders := make([]map[string]interface{}, len(state.Orders))
	for i, o := range state.Orders {
		orders[i] = map[string]interface{}{
			"order_id":      o.OrderID,
			"tried_staff":   o.TriedStaff,
			"pending_staff": o.PendingStaff,
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (h *TrackingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("tracking_query_failed", "Tracking query failed", middleware.GetReqID(r.Context()), nil, err)
		respondError(w, "Internal server error", code)
		return
	}
	respondError(w, err.Error(), code)
}
