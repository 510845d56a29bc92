// Package dispatch offers confirmed orders to staff one at a time,
// revokes offers that are not accepted in time and broadcasts orders
// nobody took.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/config"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
)

// ChangedBy is recorded in the status log for engine-made changes.
const ChangedBy = "dispatcher"

type outcome int

const (
	outcomeAssigned outcome = iota
	outcomeNoStaff
	outcomeSkipped
)

type acceptTimer struct {
	staffID uuid.UUID
	timer   Timer
}

// Engine owns the poll loop and the per-order attempt state.
type Engine struct {
	orders   interfaces.OrderRepository
	staff    interfaces.StaffRepository
	notifier interfaces.Notifier
	logger   logger.Logger
	clock    Clock
	cfg      config.DispatchConfig
	roles    domain.RoleMap

	// work serializes every engine-initiated mutation. mu only guards
	// the maps below so ClearDispatchState never waits on store I/O.
	work sync.Mutex

	mu     sync.Mutex
	base   context.Context
	tried  map[uuid.UUID]map[uuid.UUID]struct{}
	timers map[uuid.UUID]*acceptTimer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New builds an engine on the wall clock unless WithClock is given.
func New(
	orders interfaces.OrderRepository,
	staff interfaces.StaffRepository,
	notifier interfaces.Notifier,
	log logger.Logger,
	cfg config.DispatchConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		orders:   orders,
		staff:    staff,
		notifier: notifier,
		logger:   log,
		clock:    RealClock(),
		cfg:      cfg,
		roles:    domain.RoleMap(cfg.Roles),
		base:     context.Background(),
		tried:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		timers:   make(map[uuid.UUID]*acceptTimer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a cycle immediately and then once per poll interval until
// ctx is cancelled. Outstanding acceptance timers are stopped on return.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.base = ctx
	e.mu.Unlock()

	e.logger.Info("dispatcher_started", "Dispatch loop started", "", map[string]interface{}{
		"poll_interval":  e.cfg.PollInterval.String(),
		"accept_timeout": e.cfg.AcceptTimeout.String(),
		"stale_window":   e.cfg.StaleWindow.String(),
	})

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	defer e.stopTimers()

	e.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("dispatcher_stopped", "Dispatch loop stopped", "", nil)
			return nil
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle performs one poll: staleness sweep, recovery of overdue
// offers without a live timer, then the assignment sweep.
func (e *Engine) RunCycle(ctx context.Context) {
	e.sweepStale(ctx)
	e.sweepOverdue(ctx)
	e.sweepUnassigned(ctx)
}

func (e *Engine) sweepStale(ctx context.Context) {
	cutoff := e.clock.Now().Add(-e.cfg.StaleWindow)

	qctx, cancel := e.opContext(ctx)
	orders, err := e.orders.FindStaleUnconfirmed(qctx, cutoff)
	cancel()
	if err != nil {
		e.logger.Error("store_error", "Failed to list stale orders", "", nil, err)
		return
	}

	for _, o := range orders {
		e.withOrder(ctx, func(octx context.Context) {
			e.cancelStale(octx, o)
		})
	}
}

func (e *Engine) cancelStale(ctx context.Context, o *domain.Order) {
	now := e.clock.Now()
	applied, err := e.orders.ConditionalUpdate(ctx, o.ID,
		domain.OrderExpect{
			Statuses:  []domain.Status{domain.StatusPending},
			Confirmed: domain.BoolPtr(false),
		},
		domain.OrderChange{
			Status:    domain.StatusPtr(domain.StatusCancelled),
			ChangedBy: ChangedBy,
			At:        now,
		})
	if err != nil {
		e.logger.Error("store_error", "Failed to cancel stale order", o.Number, map[string]interface{}{
			"order_id": o.ID.String(),
		}, err)
		return
	}
	if !applied {
		e.logger.Debug("assignment_race_lost", "Stale order changed before it could be cancelled", o.Number, map[string]interface{}{
			"order_id": o.ID.String(),
		})
		return
	}

	e.ClearDispatchState(o.ID)
	e.logger.Info("order_stale_cancelled", "Unconfirmed order cancelled", o.Number, map[string]interface{}{
		"order_id":      o.ID.String(),
		"restaurant_id": o.RestaurantID.String(),
		"created_at":    o.CreatedAt,
	})

	o.Status = domain.StatusCancelled
	o.UpdatedAt = now
	e.notifyRoom(ctx, o, interfaces.EventOrderCancelled)
}

func (e *Engine) sweepOverdue(ctx context.Context) {
	before := e.clock.Now().Add(-e.cfg.AcceptTimeout)

	qctx, cancel := e.opContext(ctx)
	orders, err := e.orders.FindOverdueAssignments(qctx, before)
	cancel()
	if err != nil {
		e.logger.Error("store_error", "Failed to list overdue assignments", "", nil, err)
		return
	}

	for _, o := range orders {
		if o.AssignedStaffID == nil {
			continue
		}
		staffID := *o.AssignedStaffID
		e.withOrder(ctx, func(octx context.Context) {
			if e.hasTimer(o.ID) {
				return
			}
			e.logger.Info("overdue_assignment", "Recovering offer with no live timer", o.Number, map[string]interface{}{
				"order_id": o.ID.String(),
				"staff_id": staffID.String(),
			})
			e.handleTimeout(octx, o.ID, staffID)
		})
	}
}

func (e *Engine) sweepUnassigned(ctx context.Context) {
	qctx, cancel := e.opContext(ctx)
	orders, err := e.orders.FindUnassignedConfirmed(qctx)
	cancel()
	if err != nil {
		e.logger.Error("store_error", "Failed to list unassigned orders", "", nil, err)
		return
	}

	for _, o := range orders {
		e.withOrder(ctx, func(octx context.Context) {
			res, err := e.assign(octx, o)
			if err != nil {
				e.logger.Error("store_error", "Failed to assign order", o.Number, map[string]interface{}{
					"order_id": o.ID.String(),
				}, err)
				return
			}
			// a leftover tried-set means an interrupted timeout already
			// offered the order to every remaining candidate
			if res == outcomeNoStaff && len(e.triedList(o.ID)) > 0 {
				e.broadcast(octx, o)
			}
		})
	}
}

// withOrder runs fn under the work lock with a per-operation deadline.
func (e *Engine) withOrder(ctx context.Context, fn func(ctx context.Context)) {
	if ctx.Err() != nil {
		return
	}
	e.work.Lock()
	defer e.work.Unlock()

	octx, cancel := e.opContext(ctx)
	defer cancel()
	fn(octx)
}

func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.OperationTimeout)
}

// Assign offers order to the least recently assigned eligible staff
// member that has not been tried for it yet.
func (e *Engine) Assign(ctx context.Context, order *domain.Order) error {
	e.work.Lock()
	defer e.work.Unlock()

	_, err := e.assign(ctx, order)
	return err
}

func (e *Engine) assign(ctx context.Context, order *domain.Order) (outcome, error) {
	role, err := e.roles.RoleFor(order.Type)
	if err != nil {
		e.logger.Error("unmapped_order_type", "No staff role configured for order type", order.Number, map[string]interface{}{
			"order_id":   order.ID.String(),
			"order_type": order.Type,
		}, err)
		return outcomeSkipped, nil
	}

	exclude := e.triedList(order.ID)
	staff, err := e.staff.FindEligible(ctx, role, exclude)
	if errors.Is(err, domain.ErrNoEligibleStaff) {
		e.logger.Info("no_eligible_staff", "No eligible staff for order", order.Number, map[string]interface{}{
			"order_id": order.ID.String(),
			"role":     role,
			"tried":    len(exclude),
		})
		return outcomeNoStaff, nil
	}
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to find eligible staff: %w", err)
	}

	return e.assignTo(ctx, order, staff)
}

func (e *Engine) assignTo(ctx context.Context, order *domain.Order, staff *domain.Staff) (outcome, error) {
	now := e.clock.Now()
	change := domain.OrderChange{AssignTo: &staff.ID, ChangedBy: ChangedBy, At: now}

	applied, err := e.orders.ConditionalUpdate(ctx, order.ID,
		domain.OrderExpect{
			Statuses:  []domain.Status{domain.StatusPending},
			Assignee:  domain.NoAssignee,
			Confirmed: domain.BoolPtr(true),
		}, change)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to assign order: %w", err)
	}
	if !applied {
		e.logger.Debug("assignment_race_lost", "Order changed before it could be assigned", order.Number, map[string]interface{}{
			"order_id": order.ID.String(),
			"staff_id": staff.ID.String(),
		})
		return outcomeSkipped, nil
	}

	// The order is already held by staff; a failed touch only skews fairness.
	if err := e.staff.TouchAssignment(ctx, staff.ID, now); err != nil {
		e.logger.Error("store_error", "Failed to record staff assignment time", order.Number, map[string]interface{}{
			"staff_id": staff.ID.String(),
		}, err)
	}

	tried := e.markTried(order.ID, staff.ID)

	e.logger.Info("order_assigned", "Order offered to staff", order.Number, map[string]interface{}{
		"order_id": order.ID.String(),
		"staff_id": staff.ID.String(),
		"role":     staff.Role,
		"tried":    tried,
	})

	assigned := e.loadForPayload(ctx, order, change)
	e.notifyStaff(ctx, staff.ID, assigned, interfaces.EventOrderAssigned)

	e.arm(order.ID, staff.ID)
	return outcomeAssigned, nil
}

// loadForPayload re-reads the order so notifications carry its items.
// On failure the change is applied to the copy we already hold.
func (e *Engine) loadForPayload(ctx context.Context, order *domain.Order, change domain.OrderChange) *domain.Order {
	fresh, err := e.orders.FindByID(ctx, order.ID)
	if err == nil {
		return fresh
	}
	e.logger.Warn("order_reload_failed", "Falling back to cached order for notification", order.Number, map[string]interface{}{
		"order_id": order.ID.String(),
		"error":    err.Error(),
	})
	c := *order
	change.Apply(&c)
	return &c
}

// OnAcceptanceTimeout revokes an unanswered offer and moves the order on
// to the next eligible staff member, or broadcasts it when everyone has
// been tried. It is a no-op unless the order is still pending and held
// by staffID.
func (e *Engine) OnAcceptanceTimeout(ctx context.Context, orderID, staffID uuid.UUID) {
	e.work.Lock()
	defer e.work.Unlock()

	e.handleTimeout(ctx, orderID, staffID)
}

func (e *Engine) handleTimeout(ctx context.Context, orderID, staffID uuid.UUID) {
	order, err := e.orders.FindByID(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		e.ClearDispatchState(orderID)
		return
	}
	if err != nil {
		// Without a timer entry the recovery sweep retries next cycle.
		e.dropTimer(orderID, staffID)
		e.logger.Error("store_error", "Failed to load order on acceptance timeout", "", map[string]interface{}{
			"order_id": orderID.String(),
			"staff_id": staffID.String(),
		}, err)
		return
	}

	if order.Status != domain.StatusPending {
		e.ClearDispatchState(orderID)
		e.logger.Debug("timeout_ignored", "Order left pending before the timeout fired", order.Number, map[string]interface{}{
			"order_id": orderID.String(),
			"status":   order.Status,
		})
		return
	}
	if !order.IsAssignedTo(staffID) {
		e.dropTimer(orderID, staffID)
		e.logger.Debug("timeout_ignored", "Order no longer held by this staff member", order.Number, map[string]interface{}{
			"order_id": orderID.String(),
			"staff_id": staffID.String(),
		})
		return
	}

	now := e.clock.Now()
	change := domain.OrderChange{ClearAssignment: true, ChangedBy: ChangedBy, At: now}
	applied, err := e.orders.ConditionalUpdate(ctx, orderID,
		domain.OrderExpect{
			Statuses: []domain.Status{domain.StatusPending},
			Assignee: domain.AssigneeIs,
			StaffID:  staffID,
		}, change)
	if err != nil {
		e.dropTimer(orderID, staffID)
		e.logger.Error("store_error", "Failed to revoke assignment", order.Number, map[string]interface{}{
			"order_id": orderID.String(),
			"staff_id": staffID.String(),
		}, err)
		return
	}
	if !applied {
		e.dropTimer(orderID, staffID)
		e.logger.Debug("assignment_race_lost", "Order changed before the offer could be revoked", order.Number, map[string]interface{}{
			"order_id": orderID.String(),
			"staff_id": staffID.String(),
		})
		return
	}
	change.Apply(order)

	e.dropTimer(orderID, staffID)
	// after a restart the tried-set is empty; never re-offer to the staff
	// member who just let the offer lapse
	e.markTried(orderID, staffID)

	e.logger.Info("order_unassigned", "Offer not accepted in time", order.Number, map[string]interface{}{
		"order_id": orderID.String(),
		"staff_id": staffID.String(),
	})
	e.notifyStaff(ctx, staffID, order, interfaces.EventOrderUnassigned)

	res, err := e.assign(ctx, order)
	if err != nil {
		e.logger.Error("store_error", "Failed to reassign order", order.Number, map[string]interface{}{
			"order_id": orderID.String(),
		}, err)
		return
	}
	if res == outcomeNoStaff {
		e.broadcast(ctx, order)
	}
}

func (e *Engine) broadcast(ctx context.Context, order *domain.Order) {
	tried := len(e.triedList(order.ID))
	e.mu.Lock()
	delete(e.tried, order.ID)
	e.mu.Unlock()

	e.logger.Info("order_broadcast", "All eligible staff tried, order broadcast for manual pickup", order.Number, map[string]interface{}{
		"order_id":      order.ID.String(),
		"restaurant_id": order.RestaurantID.String(),
		"tried":         tried,
	})

	e.notifyRoom(ctx, order, interfaces.EventOrderAvailable)
	if err := e.notifier.NotifyGlobal(ctx, e.message(order, interfaces.EventOrderAvailableGlobal, nil)); err != nil {
		e.logger.Error("notify_failed", "Failed to send global broadcast", order.Number, map[string]interface{}{
			"order_id": order.ID.String(),
		}, err)
	}
}

// ClearDispatchState stops the order's acceptance timer and forgets its
// tried-set. It never blocks on store I/O.
func (e *Engine) ClearDispatchState(orderID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[orderID]; ok {
		t.timer.Stop()
		delete(e.timers, orderID)
	}
	delete(e.tried, orderID)
}

// Snapshot copies the current attempt state.
func (e *Engine) Snapshot() interfaces.DispatchSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := interfaces.DispatchSnapshot{
		Tried:  make(map[uuid.UUID][]uuid.UUID, len(e.tried)),
		Timers: make(map[uuid.UUID]uuid.UUID, len(e.timers)),
	}
	for orderID, set := range e.tried {
		snap.Tried[orderID] = sortedIDs(set)
	}
	for orderID, t := range e.timers {
		snap.Timers[orderID] = t.staffID
	}
	return snap
}

func (e *Engine) triedList(orderID uuid.UUID) []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedIDs(e.tried[orderID])
}

func (e *Engine) markTried(orderID, staffID uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.tried[orderID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		e.tried[orderID] = set
	}
	set[staffID] = struct{}{}
	return len(set)
}

func (e *Engine) hasTimer(orderID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[orderID]
	return ok
}

// arm replaces any timer the order already has.
func (e *Engine) arm(orderID, staffID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.timers[orderID]; ok {
		prev.timer.Stop()
	}
	t := &acceptTimer{staffID: staffID}
	t.timer = e.clock.AfterFunc(e.cfg.AcceptTimeout, func() {
		e.fire(orderID, t)
	})
	e.timers[orderID] = t
}

// dropTimer forgets the order's timer only if it belongs to staffID.
func (e *Engine) dropTimer(orderID, staffID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[orderID]; ok && t.staffID == staffID {
		t.timer.Stop()
		delete(e.timers, orderID)
	}
}

func (e *Engine) fire(orderID uuid.UUID, t *acceptTimer) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("timer_panic", "Acceptance timer callback panicked", "", map[string]interface{}{
				"order_id": orderID.String(),
				"staff_id": t.staffID.String(),
			}, fmt.Errorf("panic: %v", r))
		}
	}()

	e.work.Lock()
	defer e.work.Unlock()

	e.mu.Lock()
	current := e.timers[orderID] == t
	base := e.base
	e.mu.Unlock()
	if !current || base.Err() != nil {
		return
	}

	ctx, cancel := e.opContext(base)
	defer cancel()
	e.handleTimeout(ctx, orderID, t.staffID)
}

func (e *Engine) stopTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for orderID, t := range e.timers {
		t.timer.Stop()
		delete(e.timers, orderID)
	}
}

func (e *Engine) message(order *domain.Order, event string, staffID *uuid.UUID) interfaces.NotificationMessage {
	return interfaces.NotificationMessage{
		Event:        event,
		OrderID:      order.ID,
		StaffID:      staffID,
		RestaurantID: order.RestaurantID,
		Order:        interfaces.NewOrderPayload(order),
		Timestamp:    e.clock.Now(),
	}
}

func (e *Engine) notifyStaff(ctx context.Context, staffID uuid.UUID, order *domain.Order, event string) {
	id := staffID
	if err := e.notifier.NotifyStaff(ctx, staffID, e.message(order, event, &id)); err != nil {
		e.logger.Error("notify_failed", "Failed to notify staff", order.Number, map[string]interface{}{
			"order_id": order.ID.String(),
			"staff_id": staffID.String(),
			"event":    event,
		}, err)
	}
}

func (e *Engine) notifyRoom(ctx context.Context, order *domain.Order, event string) {
	if err := e.notifier.NotifyRestaurantRoom(ctx, order.RestaurantID, e.message(order, event, nil)); err != nil {
		e.logger.Error("notify_failed", "Failed to notify restaurant room", order.Number, map[string]interface{}{
			"order_id":      order.ID.String(),
			"restaurant_id": order.RestaurantID.String(),
			"event":         event,
		}, err)
	}
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
