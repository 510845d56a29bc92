package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type OrderHandler struct {
	service interfaces.OrderService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.OrderService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

type ChangeRequest struct {
	ChangedBy string `json:"changed_by"`
}

type StaffActionRequest struct {
	StaffID string `json:"staff_id"`
}

type AvailabilityRequest struct {
	Availability string `json:"availability"`
}

type StaffResponse struct {
	StaffID        uuid.UUID           `json:"staff_id"`
	Name           string              `json:"name"`
	Role           domain.StaffRole    `json:"role"`
	Availability   domain.Availability `json:"availability"`
	LastAssignedAt *time.Time          `json:"last_assigned_at"`
}

func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, "restaurant", func(id uuid.UUID, by string) (*domain.Order, error) {
		return h.service.Confirm(r.Context(), id, by)
	})
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, "customer", func(id uuid.UUID, by string) (*domain.Order, error) {
		return h.service.Cancel(r.Context(), id, by)
	})
}

func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.staffAction(w, r, func(id, staffID uuid.UUID) (*domain.Order, error) {
		return h.service.Accept(r.Context(), id, staffID)
	})
}

func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.staffAction(w, r, func(id, staffID uuid.UUID) (*domain.Order, error) {
		return h.service.Complete(r.Context(), id, staffID)
	})
}

func (h *OrderHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathID(r, "id")
	if !ok {
		respondError(w, "Invalid staff id", http.StatusBadRequest)
		return
	}

	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	availability, err := domain.ParseAvailability(req.Availability)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	staff, err := h.service.SetStaffAvailability(r.Context(), staffID, availability)
	if err != nil {
		h.fail(w, r, "staff_update_failed", err)
		return
	}

	respondJSON(w, http.StatusOK, StaffResponse{
		StaffID:        staff.ID,
		Name:           staff.Name,
		Role:           staff.Role,
		Availability:   staff.Availability,
		LastAssignedAt: staff.LastAssignedAt,
	})
}

func (h *OrderHandler) change(w http.ResponseWriter, r *http.Request, defaultBy string, do func(uuid.UUID, string) (*domain.Order, error)) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	// body is optional
	var req ChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	by := strings.TrimSpace(req.ChangedBy)
	if by == "" {
		by = defaultBy
	}

	order, err := do(orderID, by)
	if err != nil {
		h.fail(w, r, "order_update_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, interfaces.NewOrderPayload(order))
}

func (h *OrderHandler) staffAction(w http.ResponseWriter, r *http.Request, do func(orderID, staffID uuid.UUID) (*domain.Order, error)) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	var req StaffActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		respondError(w, "staff_id must be a valid uuid", http.StatusBadRequest)
		return
	}

	order, err := do(orderID, staffID)
	if err != nil {
		h.fail(w, r, "order_update_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, interfaces.NewOrderPayload(order))
}

func (h *OrderHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(action, "Request failed", middleware.GetReqID(r.Context()), map[string]interface{}{
			"path": r.URL.Path,
		}, err)
		respondError(w, "Internal server error", code)
		return
	}
	respondError(w, err.Error(), code)
}
