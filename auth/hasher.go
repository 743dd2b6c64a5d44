package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost is the work factor used for stored password hashes.
const DefaultBcryptCost = 10

// Hasher runs bcrypt on a bounded number of concurrent slots so a burst of logins
// cannot starve unrelated request handlers of CPU.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte

	observeWait func(time.Duration)
}

func NewHasher(cost, workers int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range", cost)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Compared against on unknown emails so both
	// login failure paths pay the same bcrypt cost.
	dummy, err := bcrypt.GenerateFromPassword([]byte("dealflow-timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: build dummy hash: %w", err)
	}

	return &Hasher{
		cost:        cost,
		slots:       semaphore.NewWeighted(int64(workers)),
		dummy:       dummy,
		observeWait: func(time.Duration) {},
	}, nil
}

// WithWaitObserver registers a callback receiving the time spent waiting for a slot.
func (h *Hasher) WithWaitObserver(fn func(time.Duration)) *Hasher {
	if fn != nil {
		h.observeWait = fn
	}
	return h
}

func (h *Hasher) acquire(ctx context.Context) error {
	start := time.Now()
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("auth: wait for hasher: %w", err)
	}
	h.observeWait(time.Since(start))
	return nil
}

// Hash returns the bcrypt hash of password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. A mismatch returns
// ErrInvalidCredentials; any other failure is returned wrapped.
func (h *Hasher) Compare(ctx context.Context, hash, password string) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("auth: compare password: %w", err)
	}
}

// CompareDummy burns one comparison against a fixed hash. The result is discarded.
func (h *Hasher) CompareDummy(ctx context.Context, password string) {
	if err := h.acquire(ctx); err != nil {
		return
	}
	defer h.slots.Release(1)

	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
