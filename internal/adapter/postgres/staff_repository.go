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

type staffRepository struct {
	db DB
}

func NewStaffRepository(db DB) interfaces.StaffRepository {
	return &staffRepository{db: db}
}

const staffColumns = `id, name, phone_number, role, availability, last_assigned_at, created_at`

func scanStaff(row Row, staff *domain.Staff) error {
	return row.Scan(
		&staff.ID, &staff.Name, &staff.PhoneNumber, &staff.Role,
		&staff.Availability, &staff.LastAssignedAt, &staff.CreatedAt,
	)
}

func (r *staffRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = $1`

	var staff domain.Staff
	if err := scanStaff(r.db.QueryRow(ctx, query, id), &staff); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrStaffNotFound
		}
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}
	return &staff, nil
}

func (r *staffRepository) FindEligible(ctx context.Context, role domain.StaffRole, exclude []uuid.UUID) (*domain.Staff, error) {
	args := []any{role, domain.AvailabilityAvailable}
	query := `SELECT ` + staffColumns + `
		FROM staff
		WHERE role = $1 AND availability = $2`

	if len(exclude) > 0 {
		placeholders := make([]string, len(exclude))
		for i, id := range exclude {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND id NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}

	// Never-assigned staff go first, then the one idle the longest.
	query += `
		ORDER BY last_assigned_at ASC NULLS FIRST, created_at ASC
		LIMIT 1`

	var staff domain.Staff
	if err := scanStaff(r.db.QueryRow(ctx, query, args...), &staff); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNoEligibleStaff
		}
		return nil, fmt.Errorf("failed to find eligible staff: %w", err)
	}
	return &staff, nil
}

func (r *staffRepository) TouchAssignment(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE staff
		SET last_assigned_at = $1
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch staff assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}

func (r *staffRepository) SetAvailability(ctx context.Context, id uuid.UUID, availability domain.Availability) error {
	query := `
		UPDATE staff
		SET availability = $1
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, availability, id)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}

func (r *staffRepository) ListAll(ctx context.Context) ([]*domain.Staff, error) {
	query := `
		SELECT ` + staffColumns + `
		FROM staff
		ORDER BY role, name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []*domain.Staff
	for rows.Next() {
		var s domain.Staff
		if err := scanStaff(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		staff = append(staff, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read staff: %w", err)
	}

	return staff, nil
}
