package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-calendar/internal/schedule"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDayLock_ReleasesAfterRun(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisDayLocker(client, 5*time.Second)

	ran := false
	err := locker.WithDayLock(context.Background(), "2026-10-19", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:calendar:2026-10-19"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:calendar:2026-10-19"))
}

func TestDayLock_ContentionAndErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisDayLocker(client, 5*time.Second)

	require.NoError(t, mr.Set("lock:calendar:2026-10-19", "someone-else"))

	err := locker.WithDayLock(context.Background(), "2026-10-19", func(ctx context.Context) error {
		t.Fatal("must not run while another holder owns the day")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	got, _ := mr.Get("lock:calendar:2026-10-19")
	assert.Equal(t, "someone-else", got, "a foreign lock is never released")

	boom := errors.New("boom")
	err = locker.WithDayLock(context.Background(), "2026-10-20", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:calendar:2026-10-20"))
}

func TestTemplateStore(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	store := NewTemplateStore(client, schedule.DefaultTemplate())

	tpl, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultTemplate(), tpl)

	custom := schedule.DefaultTemplate()
	custom.SessionMinutes = 45
	custom.Saturday = &schedule.DaySchedule{
		Windows: []schedule.Window{{Start: schedule.MustClock("09:00"), End: schedule.MustClock("13:00")}},
	}
	require.NoError(t, store.Set(ctx, custom))

	tpl, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom, tpl)

	invalid := custom
	invalid.SessionMinutes = -1
	assert.ErrorIs(t, store.Set(ctx, invalid), schedule.ErrInvalidTemplate)

	require.NoError(t, store.Reset(ctx))
	tpl, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, tpl.SessionMinutes)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), addr, "", "")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = NewRedisClient(context.Background(), addr, "", "")
	assert.Error(t, err)
}
