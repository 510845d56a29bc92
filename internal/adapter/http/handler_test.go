package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/adapter/memory"
	"github.com/YelzhanWeb/dispatch/internal/app/order"
	"github.com/YelzhanWeb/dispatch/internal/app/tracking"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubState struct {
	snap interfaces.DispatchSnapshot
}

func (s stubState) Snapshot() interfaces.DispatchSnapshot { return s.snap }

type api struct {
	orders  *memory.OrderStore
	staff   *memory.StaffStore
	handler http.Handler
}

func newAPI(t *testing.T, state tracking.StateSource) *api {
	t.Helper()
	orders := memory.NewOrderStore()
	staff := memory.NewStaffStore()
	lgr := logger.Nop()

	orderSvc := order.NewService(orders, staff, memory.NewNotifier(), nil, domain.DefaultRoleMap(), lgr)
	trackingSvc := tracking.NewService(orders, staff, state, time.Minute, lgr)

	return &api{
		orders: orders,
		staff:  staff,
		handler: NewRouter(lgr, Routes{
			Orders:   NewOrderHandler(orderSvc, lgr),
			Tracking: NewTrackingHandler(trackingSvc, lgr),
		}),
	}
}

func (a *api) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *api) addOrder(status domain.Status, assignee *uuid.UUID) *domain.Order {
	o := &domain.Order{
		ID:                  uuid.New(),
		Number:              "ORD_042",
		RestaurantID:        uuid.New(),
		Type:                domain.OrderTypeDelivery,
		Status:              status,
		AssignedStaffID:     assignee,
		RestaurantConfirmed: true,
	}
	a.orders.Put(o)
	return o
}

func (a *api) addCourier() *domain.Staff {
	s := &domain.Staff{ID: uuid.New(), Name: "Timur", Role: domain.RoleDelivery, Availability: domain.AvailabilityAvailable}
	a.staff.Put(s)
	return s
}

func TestAcceptOrder(t *testing.T) {
	a := newAPI(t, nil)
	courier := a.addCourier()
	o := a.addOrder(domain.StatusPending, &courier.ID)

	rec := a.do(http.MethodPost, "/orders/"+o.ID.String()+"/accept", `{"staff_id":"`+courier.ID.String()+`"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body interfaces.OrderPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.StatusAccepted, body.Status)
	assert.Equal(t, &courier.ID, body.AssignedStaffID)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestOrderActionErrors(t *testing.T) {
	a := newAPI(t, nil)
	courier := a.addCourier()
	other := uuid.New()
	offered := a.addOrder(domain.StatusPending, &other)
	done := a.addOrder(domain.StatusCompleted, &courier.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"bad order id", http.MethodPost, "/orders/nope/cancel", "", http.StatusBadRequest},
		{"unknown order", http.MethodPost, "/orders/" + uuid.NewString() + "/cancel", "", http.StatusNotFound},
		{"cancel completed", http.MethodPost, "/orders/" + done.ID.String() + "/cancel", "", http.StatusConflict},
		{"accept offered to other", http.MethodPost, "/orders/" + offered.ID.String() + "/accept", `{"staff_id":"` + courier.ID.String() + `"}`, http.StatusConflict},
		{"accept without staff", http.MethodPost, "/orders/" + offered.ID.String() + "/accept", `{}`, http.StatusBadRequest},
		{"accept unknown staff", http.MethodPost, "/orders/" + offered.ID.String() + "/accept", `{"staff_id":"` + uuid.NewString() + `"}`, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/orders/" + offered.ID.String() + "/confirm", `{`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/orders/" + offered.ID.String() + "/cancel", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCancelWithChangedBy(t *testing.T) {
	a := newAPI(t, nil)
	o := a.addOrder(domain.StatusPending, nil)

	rec := a.do(http.MethodPost, "/orders/"+o.ID.String()+"/cancel", `{"changed_by":"owner"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/orders/"+o.ID.String()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "owner", history[0]["changed_by"])
	assert.Equal(t, "cancelled", history[0]["status"])
}

func TestSetAvailability(t *testing.T) {
	a := newAPI(t, nil)
	courier := a.addCourier()

	rec := a.do(http.MethodPut, "/staff/"+courier.ID.String()+"/availability", `{"availability":"unavailable"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AvailabilityUnavailable, a.staff.Get(courier.ID).Availability)

	rec = a.do(http.MethodPut, "/staff/"+courier.ID.String()+"/availability", `{"availability":"on_break"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPut, "/staff/"+uuid.NewString()+"/availability", `{"availability":"available"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderStatus(t *testing.T) {
	a := newAPI(t, nil)
	courier := a.addCourier()
	o := a.addOrder(domain.StatusPending, &courier.ID)
	stored := a.orders.Get(o.ID)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stored.AssignedAt = &at
	a.orders.Put(stored)

	rec := a.do(http.MethodGet, "/orders/"+o.ID.String()+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pending", body["current_status"])
	assert.Equal(t, "2024-03-01T12:01:00Z", body["acceptance_deadline"])
	assert.Equal(t, courier.ID.String(), body["assigned_staff_id"])

	rec = a.do(http.MethodGet, "/orders/"+uuid.NewString()+"/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffList(t *testing.T) {
	a := newAPI(t, nil)
	a.addCourier()

	rec := a.do(http.MethodGet, "/staff", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "Timur", body[0]["name"])
	assert.Nil(t, body[0]["last_assigned_at"])
}

func TestDispatchState(t *testing.T) {
	orderID, staffID := uuid.New(), uuid.New()
	a := newAPI(t, stubState{snap: interfaces.DispatchSnapshot{
		Tried:  map[uuid.UUID][]uuid.UUID{orderID: {staffID}},
		Timers: map[uuid.UUID]uuid.UUID{orderID: staffID},
	}})

	rec := a.do(http.MethodGet, "/dispatch/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Orders []struct {
			OrderID      uuid.UUID   `json:"order_id"`
			TriedStaff   []uuid.UUID `json:"tried_staff"`
			PendingStaff *uuid.UUID  `json:"pending_staff"`
		} `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Orders, 1)
	assert.Equal(t, orderID, body.Orders[0].OrderID)
	assert.Equal(t, []uuid.UUID{staffID}, body.Orders[0].TriedStaff)
	assert.Equal(t, &staffID, body.Orders[0].PendingStaff)
}

type failingTracking struct{ interfaces.TrackingService }

func (failingTracking) GetStaffStatus(ctx context.Context) ([]*interfaces.TrackingStaffResponse, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	lgr := logger.Nop()
	h := NewRouter(lgr, Routes{Tracking: NewTrackingHandler(failingTracking{}, lgr)})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrStaffNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrConflict))
	assert.Equal(t, http.StatusForbidden, statusFor(domain.ErrRoleMismatch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
