package tracking

import (
	"context"
	"sort"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
)

// StateSource exposes the dispatch engine's in-memory attempt state.
type StateSource interface {
	Snapshot() interfaces.DispatchSnapshot
}

type Service struct {
	orderRepo     interfaces.OrderRepository
	staffRepo     interfaces.StaffRepository
	state         StateSource
	acceptTimeout time.Duration
	logger        logger.Logger
}

// NewService builds the read side. state is nil outside the dispatcher
// process, in which case GetDispatchState reports nothing.
func NewService(orderRepo interfaces.OrderRepository, staffRepo interfaces.StaffRepository, state StateSource, acceptTimeout time.Duration, logger logger.Logger) *Service {
	return &Service{
		orderRepo:     orderRepo,
		staffRepo:     staffRepo,
		state:         state,
		acceptTimeout: acceptTimeout,
		logger:        logger,
	}
}

var _ interfaces.TrackingService = (*Service)(nil)

func (s *Service) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (*interfaces.TrackingOrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	resp := &interfaces.TrackingOrderResponse{
		OrderID:             order.ID,
		OrderNumber:         order.Number,
		CurrentStatus:       order.Status,
		UpdatedAt:           order.UpdatedAt,
		AssignedStaffID:     order.AssignedStaffID,
		RestaurantConfirmed: order.RestaurantConfirmed,
	}

	if order.AwaitingAcceptance() && order.AssignedAt != nil {
		deadline := order.AssignedAt.Add(s.acceptTimeout)
		resp.AcceptanceDeadline = &deadline
	}

	return resp, nil
}

func (s *Service) GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]*domain.StatusLog, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.orderRepo.GetStatusHistory(ctx, orderID)
}

func (s *Service) GetStaffStatus(ctx context.Context) ([]*interfaces.TrackingStaffResponse, error) {
	staff, err := s.staffRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]*interfaces.TrackingStaffResponse, 0, len(staff))
	for _, m := range staff {
		resp = append(resp, &interfaces.TrackingStaffResponse{
			StaffID:        m.ID,
			Name:           m.Name,
			Role:           m.Role,
			Availability:   m.Availability,
			LastAssignedAt: m.LastAssignedAt,
		})
	}

	return resp, nil
}

func (s *Service) GetDispatchState(ctx context.Context) (*interfaces.DispatchStateResponse, error) {
	resp := &interfaces.DispatchStateResponse{Orders: []interfaces.DispatchOrderState{}}
	if s.state == nil {
		return resp, nil
	}

	snap := s.state.Snapshot()
	ids := make(map[uuid.UUID]struct{}, len(snap.Tried)+len(snap.Timers))
	for id := range snap.Tried {
		ids[id] = struct{}{}
	}
	for id := range snap.Timers {
		ids[id] = struct{}{}
	}

	for id := range ids {
		st := interfaces.DispatchOrderState{OrderID: id, TriedStaff: snap.Tried[id]}
		if st.TriedStaff == nil {
			st.TriedStaff = []uuid.UUID{}
		}
		if staffID, ok := snap.Timers[id]; ok {
			staffID := staffID
			st.PendingStaff = &staffID
		}
		resp.Orders = append(resp.Orders, st)
	}
	sort.Slice(resp.Orders, func(i, j int) bool {
		return resp.Orders[i].OrderID.String() < resp.Orders[j].OrderID.String()
	})

	return resp, nil
}
