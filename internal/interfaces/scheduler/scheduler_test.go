package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/domain/finsync"
	"finsight/internal/domain/item"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{"05:00", ScheduleTime{Hour: 5}, false},
		{"17:30", ScheduleTime{Hour: 17, Minute: 30}, false},
		{"0:5", ScheduleTime{Hour: 0, Minute: 5}, false},
		{"24:00", ScheduleTime{}, true},
		{"12:60", ScheduleTime{}, true},
		{"noon", ScheduleTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "07:05", ScheduleTime{Hour: 7, Minute: 5}.String())
}

func newTestScheduler(t *testing.T, times []string, provider func(context.Context) ([]Job, error)) (*Scheduler, *WorkerPool) {
	t.Helper()
	pool := NewWorkerPool(PoolConfig{WorkerCount: 2, QueueSize: 10}, zerolog.Nop())
	s, err := New(Config{ScheduleTimes: times, JobProvider: provider}, pool, zerolog.Nop())
	require.NoError(t, err)
	return s, pool
}

func TestNew_Validation(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1}, zerolog.Nop())

	_, err := New(Config{}, pool, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{ScheduleTimes: []string{"25:00"}}, pool, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{ScheduleTimes: []string{"05:00"}}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestShouldRun_FiresOncePerMinute(t *testing.T) {
	s, _ := newTestScheduler(t, []string{"05:00", "17:00"}, nil)

	at := time.Date(2024, 3, 1, 5, 0, 10, 0, time.UTC)
	assert.True(t, s.shouldRun(at))
	assert.False(t, s.shouldRun(at.Add(30*time.Second)), "same minute must not fire twice")
	assert.False(t, s.shouldRun(time.Date(2024, 3, 1, 5, 1, 0, 0, time.UTC)))
	assert.True(t, s.shouldRun(time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)))
	assert.True(t, s.shouldRun(time.Date(2024, 3, 2, 5, 0, 0, 0, time.UTC)))
}

func TestNextRun(t *testing.T) {
	s, _ := newTestScheduler(t, []string{"17:00", "05:00"}, nil)

	assert.Equal(t, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), s.NextRun(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC), s.NextRun(time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 3, 2, 5, 0, 0, 0, time.UTC), s.NextRun(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)))
}

type fakeSyncer struct {
	items    []*item.Item
	itemsErr error
	resynced atomic.Int32
	failFor  string
}

func (f *fakeSyncer) Items(ctx context.Context) ([]*item.Item, error) {
	return f.items, f.itemsErr
}

func (f *fakeSyncer) ResyncItem(ctx context.Context, it *item.Item) (finsync.Counts, error) {
	f.resynced.Add(1)
	if it.UserID == f.failFor {
		return finsync.Counts{}, errors.New("upstream down")
	}
	return finsync.Counts{Accounts: 1}, nil
}

func TestRunJobs_ResyncsEveryItem(t *testing.T) {
	syncer := &fakeSyncer{items: []*item.Item{
		{UserID: "u1", ItemID: "i1", AccessToken: "a1"},
		{UserID: "u2", ItemID: "i2", AccessToken: "a2"},
		{UserID: "u3", ItemID: "i3", AccessToken: "a3"},
	}, failFor: "u2"}

	s, pool := newTestScheduler(t, []string{"05:00"}, ResyncJobProvider(syncer))
	pool.Start()

	assert.Equal(t, 3, s.runJobs())
	pool.Shutdown(5 * time.Second)
	assert.Equal(t, int32(3), syncer.resynced.Load(), "one failing item must not block the rest")
}

func TestRunJobs_ProviderError(t *testing.T) {
	syncer := &fakeSyncer{itemsErr: errors.New("db down")}
	s, pool := newTestScheduler(t, []string{"05:00"}, ResyncJobProvider(syncer))

	assert.Equal(t, 0, s.runJobs())
	pool.Shutdown(time.Second)
}

func TestResyncJob(t *testing.T) {
	syncer := &fakeSyncer{failFor: "u2"}

	ok := NewResyncJob(&item.Item{UserID: "u1", ItemID: "i1"}, syncer)
	assert.NoError(t, ok.Execute(context.Background()))
	assert.Equal(t, "u1", ok.UserID())
	assert.Equal(t, "Scheduled resync of item i1", ok.Description())

	bad := NewResyncJob(&item.Item{UserID: "u2", ItemID: "i2"}, syncer)
	assert.ErrorContains(t, bad.Execute(context.Background()), "upstream down")
}

func TestSchedulerStartShutdown(t *testing.T) {
	var calls atomic.Int32
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1, QueueSize: 1}, zerolog.Nop())
	s, err := New(Config{
		ScheduleTimes: []string{"05:00"},
		RunOnStartup:  true,
		JobProvider: func(ctx context.Context) ([]Job, error) {
			calls.Add(1)
			return nil, nil
		},
	}, pool, zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	s.Shutdown(5 * time.Second)
	assert.Equal(t, int32(1), calls.Load())
	pool.Shutdown(time.Second)
}

func TestTriggerNowSubmitsJobs(t *testing.T) {
	syncer := &fakeSyncer{items: []*item.Item{
		{UserID: "u1", ItemID: "i1", AccessToken: "a1"},
		{UserID: "u2", ItemID: "i2", AccessToken: "a2"},
	}}
	s, pool := newTestScheduler(t, []string{"05:00"}, ResyncJobProvider(syncer))
	pool.Start()

	s.TriggerNow()
	s.Shutdown(5 * time.Second)
	pool.Shutdown(5 * time.Second)

	assert.Equal(t, int32(2), syncer.resynced.Load())
}
