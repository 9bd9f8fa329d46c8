package scheduler

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

type countingEscalator struct {
	calls atomic.Int32
	err   error
}

func (e *countingEscalator) ProcessEscalations(context.Context) (*service.EscalationReport, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return &service.EscalationReport{
		EscalatedApprovals: []service.EscalatedApproval{{RequisitionID: "req-1"}},
	}, nil
}

type fixedLease struct {
	ok  bool
	err error
}

func (l fixedLease) Acquire(context.Context) (bool, error) { return l.ok, l.err }

func TestRunOnceRespectsLease(t *testing.T) {
	tests := []struct {
		name  string
		lease Lease
		ran   bool
	}{
		{"granted", fixedLease{ok: true}, true},
		{"held elsewhere", fixedLease{ok: false}, false},
		{"redis down", fixedLease{err: stderrors.New("dial tcp: refused")}, false},
		{"nil lease", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			esc := &countingEscalator{}
			r := NewRunner(esc, tt.lease, time.Minute, logger.Nop())

			assert.Equal(t, tt.ran, r.RunOnce(context.Background()))
			want := int32(0)
			if tt.ran {
				want = 1
			}
			assert.Equal(t, want, esc.calls.Load())
		})
	}
}

func TestRunOnceSurvivesEscalatorError(t *testing.T) {
	esc := &countingEscalator{err: stderrors.New("db unavailable")}
	r := NewRunner(esc, nil, time.Minute, logger.Nop())

	assert.True(t, r.RunOnce(context.Background()))
	assert.Equal(t, int32(1), esc.calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	esc := &countingEscalator{}
	r := NewRunner(esc, nil, 5*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return esc.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

type fakeRedis struct {
	key   string
	value interface{}
	ttl   time.Duration
	ok    bool
	err   error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.key, f.value, f.ttl = key, value, expiration
	return redis.NewBoolResult(f.ok, f.err)
}

func TestRedisLease(t *testing.T) {
	rdb := &fakeRedis{ok: true}
	l := NewRedisLease(rdb, "procurement:escalation:lease", "replica-a", 55*time.Second)

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "procurement:escalation:lease", rdb.key)
	assert.Equal(t, "replica-a", rdb.value)
	assert.Equal(t, 55*time.Second, rdb.ttl)

	rdb.ok = false
	ok, err = l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	rdb.err = stderrors.New("connection refused")
	_, err = l.Acquire(context.Background())
	assert.Error(t, err)
}
