package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
)

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, restaurant_id, order_type, status, assigned_staff_id, assigned_at,
		       restaurant_confirmed, table_number, delivery_address, phone_number, notes,
		       total_price, delivery_fee, created_at, updated_at`

func scanOrder(row Row, order *domain.Order) error {
	return row.Scan(
		&order.ID, &order.Number, &order.RestaurantID, &order.Type, &order.Status,
		&order.AssignedStaffID, &order.AssignedAt, &order.RestaurantConfirmed,
		&order.TableNumber, &order.DeliveryAddress, &order.PhoneNumber, &order.Notes,
		&order.TotalPrice, &order.DeliveryFee, &order.CreatedAt, &order.UpdatedAt,
	)
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	if err := scanOrder(r.db.QueryRow(ctx, query, id), &order); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	// Load order items
	itemsQuery := `SELECT id, order_id, name, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, itemsQuery, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	return &order, nil
}

func (r *orderRepository) FindStaleUnconfirmed(ctx context.Context, cutoff time.Time) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND restaurant_confirmed = false AND created_at <= $2
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, domain.StatusPending, cutoff)
}

func (r *orderRepository) FindUnassignedConfirmed(ctx context.Context) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND restaurant_confirmed = true AND assigned_staff_id IS NULL
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, domain.StatusPending)
}

func (r *orderRepository) FindOverdueAssignments(ctx context.Context, assignedBefore time.Time) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND assigned_staff_id IS NOT NULL AND assigned_at <= $2
		ORDER BY assigned_at ASC
	`
	return r.list(ctx, query, domain.StatusPending, assignedBefore)
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) ConditionalUpdate(ctx context.Context, id uuid.UUID, expect domain.OrderExpect, change domain.OrderChange) (bool, error) {
	query, args := buildConditionalUpdate(id, expect, change)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if change.Status != nil {
		logQuery := `
			INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.Exec(ctx, logQuery, id, *change.Status, change.ChangedBy, change.At); err != nil {
			return false, fmt.Errorf("failed to log status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit order update: %w", err)
	}
	return true, nil
}

// buildConditionalUpdate renders a single guarded UPDATE so the check and
// the write happen atomically in the database.
func buildConditionalUpdate(id uuid.UUID, expect domain.OrderExpect, change domain.OrderChange) (string, []any) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sets := []string{"updated_at = " + arg(change.At)}
	if change.Status != nil {
		sets = append(sets, "status = "+arg(*change.Status))
	}
	if change.AssignTo != nil {
		sets = append(sets, "assigned_staff_id = "+arg(*change.AssignTo), "assigned_at = "+arg(change.At))
	}
	if change.ClearAssignment {
		sets = append(sets, "assigned_staff_id = NULL", "assigned_at = NULL")
	}
	if change.Confirm {
		sets = append(sets, "restaurant_confirmed = true")
	}

	conds := []string{"id = " + arg(id)}
	if len(expect.Statuses) > 0 {
		placeholders := make([]string, len(expect.Statuses))
		for i, s := range expect.Statuses {
			placeholders[i] = arg(s)
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	switch expect.Assignee {
	case domain.NoAssignee:
		conds = append(conds, "assigned_staff_id IS NULL")
	case domain.AssigneeIs:
		conds = append(conds, "assigned_staff_id = "+arg(expect.StaffID))
	case domain.AssigneeIsOrNone:
		conds = append(conds, "(assigned_staff_id IS NULL OR assigned_staff_id = "+arg(expect.StaffID)+")")
	}
	if expect.Confirmed != nil {
		conds = append(conds, "restaurant_confirmed = "+arg(*expect.Confirmed))
	}

	query := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(conds, " AND ")
	return query, args
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*domain.StatusLog, error) {
	query := `
		SELECT id, order_id, status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var logs []*domain.StatusLog
	for rows.Next() {
		var log domain.StatusLog
		if err := rows.Scan(&log.ID, &log.OrderID, &log.Status, &log.ChangedBy, &log.ChangedAt, &log.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}

	return logs, nil
}
