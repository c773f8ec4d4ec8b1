package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmjobs/internal/apperrors"
	"vmjobs/internal/job"
	"vmjobs/internal/testutil"
)

func TestRedis_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	ctx := context.Background()
	r := NewRedis(client, time.Minute, "vmjobs-test:")

	created := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.Create(ctx, snapshot("a", job.StatePending, created)))
	require.NoError(t, r.Create(ctx, snapshot("b", job.StatePending, created.Add(time.Second))))

	t.Run("duplicate create conflicts", func(t *testing.T) {
		err := r.Create(ctx, snapshot("a", job.StatePending, created))
		assert.True(t, errors.Is(err, apperrors.ErrConflict))
	})

	t.Run("save and get", func(t *testing.T) {
		s := snapshot("a", job.StateCompleted, created)
		s.Steps = []job.StepResult{{Name: "get_vm", Outcome: job.OutcomeSuccess, Message: "ok", Timestamp: created}}
		s.Outputs = map[string]any{"image_version": "1.0.1"}
		require.NoError(t, r.Save(ctx, s))

		got, err := r.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, job.StateCompleted, got.State)
		require.Len(t, got.Steps, 1)
		assert.Equal(t, "get_vm", got.Steps[0].Name)
		assert.Equal(t, "1.0.1", got.Outputs["image_version"])

		ttl := client.TTL(ctx, "vmjobs-test:job:a").Val()
		assert.True(t, ttl > 0 && ttl <= time.Minute)
	})

	t.Run("save unknown job", func(t *testing.T) {
		err := r.Save(ctx, snapshot("ghost", job.StateRunning, created))
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("list newest first and prune expired", func(t *testing.T) {
		require.NoError(t, client.Del(ctx, "vmjobs-test:job:b").Err())

		list, err := r.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].ID)

		members := client.ZRange(ctx, "vmjobs-test:jobs", 0, -1).Val()
		assert.Equal(t, []string{"a"}, members)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := r.Get(ctx, "missing")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	require.NoError(t, r.Ping(ctx))
}

// failCommand makes every call of one Redis command fail.
type failCommand struct {
	name string
	err  error
}

func (f failCommand) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f failCommand) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == f.name {
			cmd.SetErr(f.err)
			return f.err
		}
		return next(ctx, cmd)
	}
}

func (f failCommand) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedis_CreateRollsBackWhenIndexFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	client.AddHook(failCommand{name: "zadd", err: errors.New("OOM command not allowed")})
	ctx := context.Background()
	r := NewRedis(client, time.Minute, "vmjobs-rollback:")

	err := r.Create(ctx, snapshot("orphan", job.StatePending, time.Now().UTC()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))

	exists, err := client.Exists(ctx, "vmjobs-rollback:job:orphan").Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "job document must not outlive a failed create")

	_, err = r.Get(ctx, "orphan")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
