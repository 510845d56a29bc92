// Package memory holds in-process implementations of the order store,
// staff directory and notification channel. They honour the same
// conditional-update contract as the Postgres adapter.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
)

// ErrInjected is returned by stores whose failure hooks are armed.
var ErrInjected = errors.New("injected store failure")

type OrderStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*domain.Order
	history map[uuid.UUID][]*domain.StatusLog

	// FailFind and FailUpdate let tests simulate transient store errors
	// for a specific order id.
	FailFind   map[uuid.UUID]bool
	FailUpdate map[uuid.UUID]bool
	FailList   bool
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:     make(map[uuid.UUID]*domain.Order),
		history:    make(map[uuid.UUID][]*domain.StatusLog),
		FailFind:   make(map[uuid.UUID]bool),
		FailUpdate: make(map[uuid.UUID]bool),
	}
}

var _ interfaces.OrderRepository = (*OrderStore)(nil)

// Put inserts or replaces an order.
func (s *OrderStore) Put(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
}

// Get returns a copy of the stored order, or nil.
func (s *OrderStore) Get(id uuid.UUID) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

// Delete removes an order entirely.
func (s *OrderStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
}

func (s *OrderStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind[id] {
		return nil, ErrInjected
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) FindStaleUnconfirmed(ctx context.Context, cutoff time.Time) ([]*domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.IsStale(cutoff) },
		func(a, b *domain.Order) bool { return a.CreatedAt.Before(b.CreatedAt) })
}

func (s *OrderStore) FindUnassignedConfirmed(ctx context.Context) ([]*domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.Dispatchable() },
		func(a, b *domain.Order) bool { return a.CreatedAt.Before(b.CreatedAt) })
}

func (s *OrderStore) FindOverdueAssignments(ctx context.Context, assignedBefore time.Time) ([]*domain.Order, error) {
	return s.filter(func(o *domain.Order) bool {
		return o.AwaitingAcceptance() && o.AssignedAt != nil && !o.AssignedAt.After(assignedBefore)
	}, func(a, b *domain.Order) bool { return a.AssignedAt.Before(*b.AssignedAt) })
}

func (s *OrderStore) filter(keep func(*domain.Order) bool, less func(a, b *domain.Order) bool) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList {
		return nil, ErrInjected
	}
	var out []*domain.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func (s *OrderStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, expect domain.OrderExpect, change domain.OrderChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate[id] {
		return false, ErrInjected
	}
	o, ok := s.orders[id]
	if !ok || !expect.Matches(o) {
		return false, nil
	}
	change.Apply(o)
	if change.Status != nil {
		s.history[id] = append(s.history[id], &domain.StatusLog{
			ID:        len(s.history[id]) + 1,
			OrderID:   id,
			Status:    *change.Status,
			ChangedBy: change.ChangedBy,
			ChangedAt: change.At,
		})
	}
	return true, nil
}

func (s *OrderStore) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*domain.StatusLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]*domain.StatusLog, len(s.history[orderID]))
	copy(logs, s.history[orderID])
	return logs, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.AssignedStaffID != nil {
		id := *o.AssignedStaffID
		c.AssignedStaffID = &id
	}
	if o.AssignedAt != nil {
		at := *o.AssignedAt
		c.AssignedAt = &at
	}
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

type StaffStore struct {
	mu    sync.Mutex
	staff map[uuid.UUID]*domain.Staff

	FailEligible bool
	FailTouch    bool
}

func NewStaffStore() *StaffStore {
	return &StaffStore{staff: make(map[uuid.UUID]*domain.Staff)}
}

var _ interfaces.StaffRepository = (*StaffStore)(nil)

func (s *StaffStore) Put(st *domain.Staff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[st.ID] = cloneStaff(st)
}

func (s *StaffStore) Get(id uuid.UUID) *domain.Staff {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[id]
	if !ok {
		return nil
	}
	return cloneStaff(st)
}

func (s *StaffStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Staff, error) {
	st := s.Get(id)
	if st == nil {
		return nil, domain.ErrStaffNotFound
	}
	return st, nil
}

func (s *StaffStore) FindEligible(ctx context.Context, role domain.StaffRole, exclude []uuid.UUID) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailEligible {
		return nil, ErrInjected
	}

	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var best *domain.Staff
	for _, st := range s.staff {
		if st.Role != role || !st.IsAvailable() || skip[st.ID] {
			continue
		}
		if best == nil || st.AssignedBefore(best) {
			best = st
		}
	}
	if best == nil {
		return nil, domain.ErrNoEligibleStaff
	}
	return cloneStaff(best), nil
}

func (s *StaffStore) TouchAssignment(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTouch {
		return ErrInjected
	}
	st, ok := s.staff[id]
	if !ok {
		return domain.ErrStaffNotFound
	}
	st.LastAssignedAt = &at
	return nil
}

func (s *StaffStore) SetAvailability(ctx context.Context, id uuid.UUID, availability domain.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[id]
	if !ok {
		return domain.ErrStaffNotFound
	}
	st.Availability = availability
	return nil
}

func (s *StaffStore) ListAll(ctx context.Context) ([]*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		out = append(out, cloneStaff(st))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func cloneStaff(st *domain.Staff) *domain.Staff {
	c := *st
	if st.LastAssignedAt != nil {
		at := *st.LastAssignedAt
		c.LastAssignedAt = &at
	}
	return &c
}
