package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Shivanand-hulikatti/slot-booking/internal/model"
)

// uniqueViolation is the SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool used by PostgresBookingRepository.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBookingRepository stores bookings in a single table. The UNIQUE
// constraint on time_slot replaces the slot set and the slot index, so the
// three structures cannot drift apart.
type PostgresBookingRepository struct {
	db    DB
	newID func() string
	now   func() time.Time
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)

// NewPostgresBookingRepository constructs a PostgresBookingRepository.
func NewPostgresBookingRepository(db DB) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db:    db,
		newID: func() string { return uuid.New().String() },
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List returns all bookings ordered by slot, leaving out excludeSlot.
func (r *PostgresBookingRepository) List(ctx context.Context, excludeSlot string) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, email, company, time_slot
		 FROM bookings
		 WHERE time_slot <> $1
		 ORDER BY time_slot`,
		excludeSlot,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.Name, &b.Email, &b.Company, &b.TimeSlot); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetByID returns a single booking or ErrNotFound.
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.QueryRow(ctx,
		`SELECT id, name, email, company, time_slot
		 FROM bookings WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Name, &b.Email, &b.Company, &b.TimeSlot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking %q: %w", id, err)
	}
	return &b, nil
}

// Create inserts the booking. The insert itself is the availability check:
// ON CONFLICT skips the row when the slot is taken and RETURNING yields
// nothing, so two concurrent inserts cannot both win.
func (r *PostgresBookingRepository) Create(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	b := &model.Booking{
		ID:       r.newID(),
		Name:     req.Name,
		Email:    req.Email,
		Company:  req.Company,
		TimeSlot: req.TimeSlot,
	}
	now := r.now()

	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO bookings (id, name, email, company, time_slot, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (time_slot) DO NOTHING
		 RETURNING id`,
		b.ID, b.Name, b.Email, b.Company, b.TimeSlot, now,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrSlotConflict, b.TimeSlot)
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

// Update locks the booking row with SELECT … FOR UPDATE so concurrent edits
// of the same booking are serialised, checks the target slot when it
// changes, then writes the merged row.
func (r *PostgresBookingRepository) Update(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	var current model.Booking
	err = tx.QueryRow(ctx,
		`SELECT id, name, email, company, time_slot
		 FROM bookings
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	).Scan(&current.ID, &current.Name, &current.Email, &current.Company, &current.TimeSlot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("lock booking row: %w", err)
	}

	updated := patch.Apply(current)
	updated.ID = id

	if patch.MovesSlot(current) {
		var taken bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM bookings WHERE time_slot = $1)`,
			updated.TimeSlot,
		).Scan(&taken)
		if err != nil {
			return nil, fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("%w: %q", ErrSlotConflict, updated.TimeSlot)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE bookings
		 SET name = $2, email = $3, company = $4, time_slot = $5, updated_at = $6
		 WHERE id = $1`,
		updated.ID, updated.Name, updated.Email, updated.Company, updated.TimeSlot, r.now(),
	)
	if err != nil {
		// Another transaction took the slot between the check and the update.
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrSlotConflict, updated.TimeSlot)
		}
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &updated, nil
}

// Delete removes the booking row, freeing its slot.
func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

// Reconcile has nothing to repair: a single table cannot disagree with
// itself.
func (r *PostgresBookingRepository) Reconcile(context.Context) (int, error) {
	return 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
