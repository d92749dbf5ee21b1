// Package model defines the core domain types for the slot booking system.
package model

// Booking is a reservation of exactly one time slot.
type Booking struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company,omitempty"`
	TimeSlot string `json:"timeSlot"`
}

// BookingRequest is the payload for creating a booking.
type BookingRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company,omitempty"`
	TimeSlot string `json:"timeSlot"`
}

// BookingPatch is the payload for editing a booking. Nil fields are left
// unchanged.
type BookingPatch struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Company  *string `json:"company,omitempty"`
	TimeSlot *string `json:"timeSlot,omitempty"`
}

// Apply returns b with the supplied patch fields merged in. The ID is never
// changed and an empty time slot is ignored, since a booking always owns one.
func (p BookingPatch) Apply(b Booking) Booking {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Email != nil {
		b.Email = *p.Email
	}
	if p.Company != nil {
		b.Company = *p.Company
	}
	if p.TimeSlot != nil && *p.TimeSlot != "" {
		b.TimeSlot = *p.TimeSlot
	}
	return b
}

// MovesSlot reports whether applying p to b would move it to another slot.
func (p BookingPatch) MovesSlot(b Booking) bool {
	return p.TimeSlot != nil && *p.TimeSlot != "" && *p.TimeSlot != b.TimeSlot
}

// LoginRequest is the payload for the admin login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the issued admin token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// ReconcileResult reports what the index repair pass changed.
type ReconcileResult struct {
	Repaired int `json:"repaired"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BookingResult summarises the outcome of a single booking attempt.
// Used by the concurrent booking tests.
type BookingResult struct {
	Name    string
	Booking *Booking
	Error   error
}
