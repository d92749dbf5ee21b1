// Package notify dispatches booking confirmations to an external channel
// without holding up the request that produced them.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Payload is what the external mailer needs to confirm a booking.
type Payload struct {
	Recipient string `json:"recipient"`
	Name      string `json:"name"`
	TimeSlot  string `json:"timeSlot"`
	EditURL   string `json:"editUrl"`
	Company   string `json:"company,omitempty"`

	// BookingID keys the message on transports that partition by key.
	BookingID string `json:"-"`
}

// Sender delivers a payload. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// Trigger fires payloads at a Sender on detached goroutines. The caller
// never waits and never sees the outcome; failures are logged.
type Trigger struct {
	sender  Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewTrigger constructs a Trigger. timeout bounds each dispatch.
func NewTrigger(sender Sender, timeout time.Duration) *Trigger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Trigger{sender: sender, timeout: timeout}
}

// Fire dispatches p in the background and returns immediately.
func (t *Trigger) Fire(p Payload) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.dispatch(p); err != nil {
			log.Error().Err(err).
				Str("booking_id", p.BookingID).
				Str("time_slot", p.TimeSlot).
				Msg("booking notification failed")
			return
		}
		log.Info().
			Str("booking_id", p.BookingID).
			Str("time_slot", p.TimeSlot).
			Msg("booking notification sent")
	}()
}

// Wait blocks until every dispatch started so far has finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

func (t *Trigger) dispatch(p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()

	// Detached from the request context: the request may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	return t.sender.Send(ctx, p)
}

// LogSender only logs the payload. It is the default when no external
// channel is configured.
type LogSender struct{}

// Send logs p.
func (LogSender) Send(_ context.Context, p Payload) error {
	log.Info().
		Str("recipient", p.Recipient).
		Str("time_slot", p.TimeSlot).
		Str("edit_url", p.EditURL).
		Msg("booking confirmation (log only)")
	return nil
}
