package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/core"
)

// Waiter is satisfied by scheduler handles.
type Waiter interface {
	Wait(ctx context.Context) (core.Task, error)
}

// WaitTask waits up to five seconds for the task behind h to finish.
func WaitTask(t testing.TB, h Waiter) core.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := h.Wait(ctx)
	require.NoError(t, err)
	return task
}
