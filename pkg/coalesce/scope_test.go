package coalesce

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowOperation returns data once release is closed, or the cancellation cause if ctx ends first.
func slowOperation(ctx context.Context, release <-chan struct{}) ([]string, error) {
	select {
	case <-release:
		if err := CancelCause(ctx); err != nil {
			return nil, err
		}
		return []string{"stale answer"}, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func TestScope_NewSignalSupersedesPrevious(t *testing.T) {
	scope := NewScope("topQuestions")

	ctxA, doneA := scope.Signal(context.Background())
	defer doneA()

	type outcome struct {
		data []string
		err  error
	}
	results := make(chan outcome, 1)
	release := make(chan struct{})
	go func() {
		data, err := slowOperation(ctxA, release)
		results <- outcome{data, err}
	}()

	ctxB, doneB := scope.Signal(context.Background())
	defer doneB()
	close(release)

	assert.Error(t, ctxA.Err(), "A must be cancelled")
	assert.ErrorIs(t, CancelCause(ctxA), ErrSuperseded)
	assert.NoError(t, ctxB.Err(), "B stays live")

	select {
	case res := <-results:
		assert.Nil(t, res.data, "a superseded call never yields data")
		assert.ErrorIs(t, res.err, ErrSuperseded)
		assert.True(t, IsCanceled(res.err))
	case <-time.After(2 * time.Second):
		t.Fatal("superseded operation did not return")
	}

	stats := scope.Stats()
	assert.Equal(t, int64(2), stats.Signals)
	assert.Equal(t, int64(1), stats.Superseded)
	assert.True(t, stats.Live)
}

func TestScope_DoneRetiresSignal(t *testing.T) {
	scope := NewScope("engagement")

	ctxA, doneA := scope.Signal(context.Background())
	doneA()
	assert.False(t, scope.Stats().Live)
	assert.NotErrorIs(t, CancelCause(ctxA), ErrSuperseded)

	_, doneB := scope.Signal(context.Background())
	defer doneB()
	assert.Equal(t, int64(0), scope.Stats().Superseded, "a completed request is not superseded")
}

func TestScope_LateDoneKeepsNewerSignal(t *testing.T) {
	scope := NewScope("topMaterials")

	_, doneA := scope.Signal(context.Background())
	ctxB, doneB := scope.Signal(context.Background())
	defer doneB()

	doneA()
	assert.True(t, scope.Stats().Live, "retiring A must not forget B")

	scope.Abort()
	assert.ErrorIs(t, CancelCause(ctxB), ErrAborted)
}

func TestScope_Abort(t *testing.T) {
	scope := NewScope("topQuestions")
	scope.Abort() // no live signal

	ctx, done := scope.Signal(context.Background())
	defer done()
	scope.Abort()

	require.Error(t, ctx.Err())
	assert.ErrorIs(t, CancelCause(ctx), ErrAborted)
	assert.False(t, scope.Stats().Live)
}

func TestScope_ParentCancellation(t *testing.T) {
	scope := NewScope("topQuestions")
	parent, cancel := context.WithCancel(context.Background())

	ctx, done := scope.Signal(parent)
	defer done()
	cancel()

	assert.ErrorIs(t, CancelCause(ctx), context.Canceled)
}

func TestIsCanceled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"superseded", ErrSuperseded, true},
		{"wrapped superseded", fmt.Errorf("top questions: %w", ErrSuperseded), true},
		{"aborted", ErrAborted, true},
		{"context canceled", context.Canceled, true},
		{"deadline", context.DeadlineExceeded, false},
		{"network failure", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCanceled(tt.err))
		})
	}
}
