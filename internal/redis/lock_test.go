package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestAppointmentLockExcludes(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	locker := NewRedisAppointmentLocker(client, 5*time.Second)
	id := uuid.New()

	err := locker.WithAppointmentLock(ctx, id, func(ctx context.Context) error {
		// A second acquisition for the same appointment must fail while the
		// first holder is inside the critical section.
		inner := locker.WithAppointmentLock(ctx, id, func(ctx context.Context) error {
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// Released on exit; reacquisition succeeds.
	err = locker.WithAppointmentLock(ctx, id, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestAppointmentLockIndependentPerAppointment(t *testing.T) {
	ctx := context.Background()
	locker := NewRedisAppointmentLocker(newTestClient(t), 5*time.Second)

	err := locker.WithAppointmentLock(ctx, uuid.New(), func(ctx context.Context) error {
		return locker.WithAppointmentLock(ctx, uuid.New(), func(ctx context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestAppointmentLockPropagatesFnError(t *testing.T) {
	ctx := context.Background()
	locker := NewRedisAppointmentLocker(newTestClient(t), 5*time.Second)
	id := uuid.New()

	boom := assert.AnError
	err := locker.WithAppointmentLock(ctx, id, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The lock is still released after a failing fn.
	err = locker.WithAppointmentLock(ctx, id, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}
