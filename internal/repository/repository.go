// Package repository owns booking persistence: the slot set, the
// slot→id index and the booking records, and the protocol that keeps the
// three consistent.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/slot-booking/internal/model"
)

// ErrNotFound is returned when a requested booking does not exist.
var ErrNotFound = errors.New("booking not found")

// ErrSlotConflict is returned when the requested time slot is already owned
// by another booking.
var ErrSlotConflict = errors.New("time slot already booked")

// BookingRepository is implemented by every storage backend.
type BookingRepository interface {
	// List returns every booking except the one holding excludeSlot (if
	// any). Entries whose indexes are inconsistent are skipped.
	List(ctx context.Context, excludeSlot string) ([]model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	Create(ctx context.Context, req model.BookingRequest) (*model.Booking, error)
	Update(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	// Reconcile repairs index entries that no longer agree with each other
	// and returns how many slots it touched.
	Reconcile(ctx context.Context) (int, error)
}
