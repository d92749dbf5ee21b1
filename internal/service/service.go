// Package service implements validation and orchestration between the HTTP
// handlers and the booking repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/slot-booking/internal/model"
	"github.com/Shivanand-hulikatti/slot-booking/internal/notify"
	"github.com/Shivanand-hulikatti/slot-booking/internal/repository"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a caller mistake found before the store is
// touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// Notifier receives a payload for every booking created. It must not
// block.
type Notifier interface {
	Fire(p notify.Payload)
}

// BookingService orchestrates booking operations.
type BookingService struct {
	bookings repository.BookingRepository
	notifier Notifier
	baseURL  string
}

// NewBookingService constructs a BookingService. baseURL is the public
// origin used to build the edit link sent to the visitor.
func NewBookingService(bookings repository.BookingRepository, notifier Notifier, baseURL string) *BookingService {
	return &BookingService{
		bookings: bookings,
		notifier: notifier,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// List returns all bookings except the one holding excludeSlot.
func (s *BookingService) List(ctx context.Context, excludeSlot string) ([]model.Booking, error) {
	bookings, err := s.bookings.List(ctx, strings.TrimSpace(excludeSlot))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// Get returns a single booking by ID.
func (s *BookingService) Get(ctx context.Context, id string) (*model.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, required("id")
	}
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

// Create validates req, reserves its slot and hands a confirmation to the
// notifier. The notification outcome never affects the result.
func (s *BookingService) Create(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	req.TimeSlot = strings.TrimSpace(req.TimeSlot)

	switch {
	case req.Name == "":
		return nil, required("name")
	case req.Email == "":
		return nil, required("email")
	case !isValidEmail(req.Email):
		return nil, &ValidationError{Field: "email", Reason: "is not a valid email address"}
	case req.TimeSlot == "":
		return nil, required("timeSlot")
	}

	booking, err := s.bookings.Create(ctx, req)
	if err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Fire(notify.Payload{
			Recipient: booking.Email,
			Name:      booking.Name,
			TimeSlot:  booking.TimeSlot,
			EditURL:   s.EditURL(booking.ID),
			Company:   booking.Company,
			BookingID: booking.ID,
		})
	}
	return booking, nil
}

// Update applies patch to the booking. Supplied fields may not be blank,
// except company which is optional.
func (s *BookingService) Update(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, required("id")
	}

	patch = model.BookingPatch{
		Name:     trimmed(patch.Name),
		Email:    trimmed(patch.Email),
		Company:  trimmed(patch.Company),
		TimeSlot: trimmed(patch.TimeSlot),
	}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"name", patch.Name},
		{"email", patch.Email},
		{"timeSlot", patch.TimeSlot},
	} {
		if f.value != nil && *f.value == "" {
			return nil, required(f.name)
		}
	}
	if patch.Email != nil && !isValidEmail(*patch.Email) {
		return nil, &ValidationError{Field: "email", Reason: "is not a valid email address"}
	}

	booking, err := s.bookings.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrSlotConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update booking: %w", err)
	}
	return booking, nil
}

// Delete removes a booking and frees its slot. Callers must have checked
// admin authorization.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return required("id")
	}
	if err := s.bookings.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

// Reconcile repairs the booking indexes and reports how many slots changed.
func (s *BookingService) Reconcile(ctx context.Context) (int, error) {
	n, err := s.bookings.Reconcile(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	return n, nil
}

// EditURL is the link a visitor uses to change their booking.
func (s *BookingService) EditURL(id string) string {
	return s.baseURL + "/edit-booking/" + id
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
