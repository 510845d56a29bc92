package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/google/uuid"
)

// Интерфейсы Репозиториев (Adapter/Postgres)
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindStaleUnconfirmed(ctx context.Context, cutoff time.Time) ([]*domain.Order, error)
	FindUnassignedConfirmed(ctx context.Context) ([]*domain.Order, error)
	FindOverdueAssignments(ctx context.Context, assignedBefore time.Time) ([]*domain.Order, error)
	// ConditionalUpdate applies change only if the order matches expect.
	// applied=false with a nil error means another writer got there first.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expect domain.OrderExpect, change domain.OrderChange) (bool, error)
	GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]*domain.StatusLog, error)
}

type StaffRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Staff, error)
	// FindEligible returns the least recently assigned available staff
	// member with the given role whose id is not in exclude.
	FindEligible(ctx context.Context, role domain.StaffRole, exclude []uuid.UUID) (*domain.Staff, error)
	TouchAssignment(ctx context.Context, id uuid.UUID, at time.Time) error
	SetAvailability(ctx context.Context, id uuid.UUID, availability domain.Availability) error
	ListAll(ctx context.Context) ([]*domain.Staff, error)
}
