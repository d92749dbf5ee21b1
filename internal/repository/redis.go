package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/slot-booking/internal/model"
	"github.com/Shivanand-hulikatti/slot-booking/internal/store"
)

// Key layout shared with the deployed data.
const (
	bookedSlotsKey   = "booked-time-slots"
	slotToIDKey      = "slot-to-id-map"
	bookingKeyPrefix = "booking:"
)

func bookingKey(id string) string {
	return bookingKeyPrefix + id
}

// RedisBookingRepository keeps bookings in three structures:
//
//	booked-time-slots  SET   of booked slots
//	slot-to-id-map     HASH  slot → booking id
//	booking:<id>       JSON  booking record
//
// Every mutation rewrites all affected structures in one MULTI/EXEC, so a
// reader never sees a slot whose index or record is half written.
type RedisBookingRepository struct {
	kv    store.Store
	newID func() string
}

var _ BookingRepository = (*RedisBookingRepository)(nil)

// NewRedisBookingRepository constructs a RedisBookingRepository.
func NewRedisBookingRepository(kv store.Store) *RedisBookingRepository {
	return &RedisBookingRepository{
		kv:    kv,
		newID: func() string { return uuid.New().String() },
	}
}

// List resolves every booked slot to its record. Slots without an index
// entry and ids without a readable record are dropped, not reported.
func (r *RedisBookingRepository) List(ctx context.Context, excludeSlot string) ([]model.Booking, error) {
	slots, err := r.kv.SMembers(ctx, bookedSlotsKey)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	if excludeSlot != "" {
		slots = slices.DeleteFunc(slots, func(s string) bool { return s == excludeSlot })
	}
	if len(slots) == 0 {
		return []model.Booking{}, nil
	}

	ids, err := r.kv.HMGet(ctx, slotToIDKey, slots...)
	if err != nil {
		return nil, fmt.Errorf("resolve slot ids: %w", err)
	}

	keys := make([]string, 0, len(ids))
	for i, id := range ids {
		if id == nil {
			log.Debug().Str("slot", slots[i]).Msg("booked slot has no index entry, skipping")
			continue
		}
		keys = append(keys, bookingKey(*id))
	}

	records, err := r.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("fetch booking records: %w", err)
	}

	bookings := make([]model.Booking, 0, len(records))
	for i, raw := range records {
		if raw == nil {
			log.Debug().Str("key", keys[i]).Msg("indexed booking has no record, skipping")
			continue
		}
		var b model.Booking
		if err := json.Unmarshal([]byte(*raw), &b); err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("undecodable booking record, skipping")
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// GetByID returns a single booking or ErrNotFound.
func (r *RedisBookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return load(ctx, r.kv, id)
}

// Create reserves req.TimeSlot for a new booking.
//
// The slot check and the index writes are two round-trips. Left alone that
// is a check-then-act race:
//
//	A: SISMEMBER booked-time-slots S → 0
//	B: SISMEMBER booked-time-slots S → 0
//	A: MULTI SADD/HSET/SET EXEC
//	B: MULTI SADD/HSET/SET EXEC      → slot-to-id-map[S] now points at B,
//	                                   A's record is orphaned
//
// The check therefore runs under WATCH booked-time-slots. When B's EXEC
// follows A's write to the set, Redis discards B's transaction, the store
// re-runs the callback and B's second check sees the slot taken and fails
// with ErrSlotConflict. Without WATCH support the outcome degrades to
// last-writer-wins on the contested index entry.
func (r *RedisBookingRepository) Create(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	booking := &model.Booking{
		ID:       r.newID(),
		Name:     req.Name,
		Email:    req.Email,
		Company:  req.Company,
		TimeSlot: req.TimeSlot,
	}
	data, err := json.Marshal(booking)
	if err != nil {
		return nil, fmt.Errorf("encode booking: %w", err)
	}

	err = r.kv.Update(ctx, func(tx store.Txn) error {
		taken, err := tx.SIsMember(ctx, bookedSlotsKey, booking.TimeSlot)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrSlotConflict, booking.TimeSlot)
		}

		return tx.Commit(ctx, func(b store.Batch) {
			b.SAdd(bookedSlotsKey, booking.TimeSlot)
			b.HSet(slotToIDKey, booking.TimeSlot, booking.ID)
			b.Set(bookingKey(booking.ID), string(data))
		})
	}, bookedSlotsKey)
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create booking for %q: %w", booking.TimeSlot, err)
	}
	return booking, nil
}

// Update merges patch into the booking. A slot move checks the new slot
// before anything is written, then swaps both indexes and rewrites the
// record in one transaction. Otherwise only the record is rewritten.
func (r *RedisBookingRepository) Update(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error) {
	key := bookingKey(id)

	var updated model.Booking
	err := r.kv.Update(ctx, func(tx store.Txn) error {
		current, err := load(ctx, tx, id)
		if err != nil {
			return err
		}

		updated = patch.Apply(*current)
		updated.ID = id
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode booking: %w", err)
		}

		if !patch.MovesSlot(*current) {
			return tx.Commit(ctx, func(b store.Batch) {
				b.Set(key, string(data))
			})
		}

		taken, err := tx.SIsMember(ctx, bookedSlotsKey, updated.TimeSlot)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrSlotConflict, updated.TimeSlot)
		}

		return tx.Commit(ctx, func(b store.Batch) {
			b.SRem(bookedSlotsKey, current.TimeSlot)
			b.HDel(slotToIDKey, current.TimeSlot)
			b.SAdd(bookedSlotsKey, updated.TimeSlot)
			b.HSet(slotToIDKey, updated.TimeSlot, id)
			b.Set(key, string(data))
		})
	}, key, bookedSlotsKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrSlotConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update booking %q: %w", id, err)
	}
	return &updated, nil
}

// Delete removes the booking and frees its slot. The record is read first
// because the index entries are keyed by slot.
func (r *RedisBookingRepository) Delete(ctx context.Context, id string) error {
	key := bookingKey(id)

	err := r.kv.Update(ctx, func(tx store.Txn) error {
		current, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		return tx.Commit(ctx, func(b store.Batch) {
			b.SRem(bookedSlotsKey, current.TimeSlot)
			b.HDel(slotToIDKey, current.TimeSlot)
			b.Del(key)
		})
	}, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete booking %q: %w", id, err)
	}
	return nil
}

// Reconcile walks the slot set and the slot index and repairs every slot
// the two disagree on:
//
//   - a slot whose index entry points at a record owning that slot is kept,
//     and re-added to the set if it was missing there;
//   - any other slot is dropped from both the set and the index.
//
// Booking records are never deleted; an orphaned record stays reachable by
// its id.
func (r *RedisBookingRepository) Reconcile(ctx context.Context) (int, error) {
	var repaired int
	err := r.kv.Update(ctx, func(tx store.Txn) error {
		repaired = 0

		slots, err := tx.SMembers(ctx, bookedSlotsKey)
		if err != nil {
			return fmt.Errorf("list booked slots: %w", err)
		}
		index, err := tx.HGetAll(ctx, slotToIDKey)
		if err != nil {
			return fmt.Errorf("read slot index: %w", err)
		}

		inSet := make(map[string]bool, len(slots))
		for _, s := range slots {
			inSet[s] = true
		}
		candidates := slices.Clone(slots)
		for s := range index {
			if !inSet[s] {
				candidates = append(candidates, s)
			}
		}

		valid, err := validSlots(ctx, tx, candidates, index)
		if err != nil {
			return err
		}

		var restore, drop []string
		for _, s := range candidates {
			switch {
			case valid[s] && !inSet[s]:
				restore = append(restore, s)
			case !valid[s]:
				drop = append(drop, s)
			}
		}
		if len(restore) == 0 && len(drop) == 0 {
			return nil
		}

		repaired = len(restore) + len(drop)
		log.Info().Strs("restored", restore).Strs("dropped", drop).Msg("repairing slot index")
		return tx.Commit(ctx, func(b store.Batch) {
			if len(restore) > 0 {
				b.SAdd(bookedSlotsKey, restore...)
			}
			if len(drop) > 0 {
				b.SRem(bookedSlotsKey, drop...)
				b.HDel(slotToIDKey, drop...)
			}
		})
	}, bookedSlotsKey, slotToIDKey)
	if err != nil {
		return 0, fmt.Errorf("reconcile slot index: %w", err)
	}
	return repaired, nil
}

// validSlots reports, per slot, whether its index entry points at a record
// that owns the same slot.
func validSlots(ctx context.Context, rd store.Reader, slots []string, index map[string]string) (map[string]bool, error) {
	var keyed []string
	var keys []string
	for _, s := range slots {
		if id, ok := index[s]; ok {
			keyed = append(keyed, s)
			keys = append(keys, bookingKey(id))
		}
	}

	records, err := rd.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("fetch booking records: %w", err)
	}

	valid := make(map[string]bool, len(keyed))
	for i, raw := range records {
		if raw == nil {
			continue
		}
		var b model.Booking
		if err := json.Unmarshal([]byte(*raw), &b); err != nil {
			continue
		}
		s := keyed[i]
		valid[s] = b.TimeSlot == s && b.ID == index[s]
	}
	return valid, nil
}

func load(ctx context.Context, rd store.Reader, id string) (*model.Booking, error) {
	raw, err := rd.Get(ctx, bookingKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNil) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking %q: %w", id, err)
	}

	var b model.Booking
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("decode booking %q: %w", id, err)
	}
	return &b, nil
}
