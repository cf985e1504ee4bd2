package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// Repository defines appointment data access
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	// Get returns ledger.ErrNotFound for an unknown id.
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Lock is Get holding a row lock until the unit of work ends.
	Lock(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, a *Appointment) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const selectAppointment = `
	SELECT id, patient_id, doctor_id, booked_by, booked_by_role, consultation_fee, opted_into_points,
	       platform_fee_rate, platform_fee, total_due, status, created_at, completed_at
	FROM appointments
`

func (r *repository) Create(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, booked_by, booked_by_role, consultation_fee, opted_into_points,
			platform_fee_rate, platform_fee, total_due, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, query,
		a.ID, a.PatientID, a.DoctorID, a.BookedBy, a.BookedByRole, a.ConsultationFee, a.OptedIntoPoints,
		a.PlatformFeeRate, a.PlatformFee, a.TotalDue, a.Status, a.CreatedAt,
	)
	return err
}

func (r *repository) get(ctx context.Context, query string, id uuid.UUID) (*Appointment, error) {
	var a Appointment
	err := database.Executor(ctx, r.db).GetContext(ctx, &a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: appointment %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, selectAppointment+`WHERE id = $1`, id)
}

func (r *repository) Lock(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if !database.InTx(ctx) {
		return nil, ledger.ErrNoUnitOfWork
	}
	return r.get(ctx, selectAppointment+`WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) UpdateStatus(ctx context.Context, a *Appointment) error {
	_, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE appointments SET status = $2, completed_at = $3 WHERE id = $1`,
		a.ID, a.Status, a.CompletedAt,
	)
	return err
}

// MemoryRepository is the in-process Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]Appointment)}
}

func (m *MemoryRepository) Create(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.ID] = *a
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.items, a.ID)
	})
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: appointment %s", ledger.ErrNotFound, id)
	}
	return &a, nil
}

func (m *MemoryRepository) Lock(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if !database.InTx(ctx) {
		return nil, ledger.ErrNoUnitOfWork
	}
	return m.Get(ctx, id)
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.items[a.ID]
	if !ok {
		return fmt.Errorf("%w: appointment %s", ledger.ErrNotFound, a.ID)
	}
	m.items[a.ID] = *a
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items[a.ID] = prev
	})
	return nil
}
