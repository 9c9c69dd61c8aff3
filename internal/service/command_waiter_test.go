package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/memstore"
)

func TestWaiter_ImmediateTerminal(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	id, _ := s.Enqueue(ctx, 0x03, nil)
	require.NoError(t, s.RecordResult(ctx, id, storage.StatusCompleted, "AABB", nil))

	w := NewCommandWaiter(s, 5*time.Millisecond, time.Second)
	outcome, cmd, err := w.Wait(ctx, id)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, string(storage.StatusCompleted), cmd.Status)
}

func TestWaiter_ResolvesWhileWaiting(t *testing.T) {
	// 等待期间由引擎侧回填终态
	s := memstore.New()
	ctx := context.Background()
	id, _ := s.Enqueue(ctx, 0x03, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.RecordResult(ctx, id, storage.StatusFailed, "", nil)
	}()

	w := NewCommandWaiter(s, 5*time.Millisecond, time.Second)
	outcome, _, err := w.Wait(ctx, id)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
}

func TestWaiter_Timeout(t *testing.T) {
	// 超时是独立结局：指令停在ACKED不算失败
	s := memstore.New()
	ctx := context.Background()
	id, _ := s.Enqueue(ctx, 0x03, nil)
	require.NoError(t, s.RecordResult(ctx, id, storage.StatusAcked, "", nil))

	w := NewCommandWaiter(s, 5*time.Millisecond, 30*time.Millisecond)
	outcome, cmd, err := w.Wait(ctx, id)
	require.NoError(t, err)
	require.Equal(t, OutcomeTimeout, outcome)
	require.Equal(t, string(storage.StatusAcked), cmd.Status)
}

func TestWaiter_ContextCancel(t *testing.T) {
	s := memstore.New()
	id, _ := s.Enqueue(context.Background(), 0x03, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	w := NewCommandWaiter(s, 5*time.Millisecond, time.Minute)
	outcome, _, err := w.Wait(ctx, id)
	require.NoError(t, err)
	require.Equal(t, OutcomeTimeout, outcome)
}

func TestWaiter_UnknownCommand(t *testing.T) {
	w := NewCommandWaiter(memstore.New(), 5*time.Millisecond, time.Second)
	_, _, err := w.Wait(context.Background(), 42)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
