package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/models"
)

func slotFixture(selection int32, price int64, inventory int16) models.ProductSlot {
	return models.ProductSlot{
		SelectionID: selection,
		Price:       price,
		Inventory:   inventory,
		Capacity:    10,
		ProductID:   7,
	}
}

func TestStore_FetchOrder(t *testing.T) {
	// SENDING优先于PENDING；同状态按ID升序
	s := New()
	ctx := context.Background()

	first, err := s.Enqueue(ctx, 0x03, []byte{0x00, 0x0A})
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, 0x03, []byte{0x00, 0x14})
	require.NoError(t, err)

	cmd, err := s.FetchNextDispatchable(ctx)
	require.NoError(t, err)
	require.Equal(t, first, cmd.ID)

	// second进入SENDING后应插到first前面
	require.NoError(t, s.MarkSending(ctx, second, 7))
	cmd, err = s.FetchNextDispatchable(ctx)
	require.NoError(t, err)
	require.Equal(t, second, cmd.ID)
	require.NotNil(t, cmd.AssignedSeq)
	require.Equal(t, int16(7), *cmd.AssignedSeq)
}

func TestStore_FetchSkipsResolved(t *testing.T) {
	// 终态与中间业务态都不可再下发
	s := New()
	ctx := context.Background()

	id, _ := s.Enqueue(ctx, 0x03, nil)
	require.NoError(t, s.RecordResult(ctx, id, storage.StatusAcked, "", nil))

	cmd, err := s.FetchNextDispatchable(ctx)
	require.NoError(t, err)
	require.Nil(t, cmd)
}

func TestStore_TerminalImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _ := s.Enqueue(ctx, 0x03, nil)
	require.NoError(t, s.RecordResult(ctx, id, storage.StatusCompleted, "AABB", nil))

	// 终态之后的任何回填都是无操作
	require.NoError(t, s.RecordResult(ctx, id, storage.StatusFailed, "CCDD", nil))

	cmd, err := s.GetCommand(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusCompleted), cmd.Status)
	require.Equal(t, "AABB", *cmd.ResponseRaw)
}

func TestStore_IncrementRetryCeiling(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _ := s.Enqueue(ctx, 0x03, nil)
	require.NoError(t, s.MarkSending(ctx, id, 1))

	for i := 1; i < storage.MaxRetries; i++ {
		next, err := s.IncrementRetry(ctx, id)
		require.NoError(t, err)
		require.Equal(t, storage.StatusSending, next)
	}
	next, err := s.IncrementRetry(ctx, id)
	require.NoError(t, err)
	require.Equal(t, storage.StatusFailed, next)

	// FAILED的指令不会再被取出
	cmd, err := s.FetchNextDispatchable(ctx)
	require.NoError(t, err)
	require.Nil(t, cmd)
}

func TestStore_NotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetCommand(ctx, 42)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, s.MarkSending(ctx, 42, 1), storage.ErrNotFound)
	_, err = s.IncrementRetry(ctx, 42)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ProjectionUpsert(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertProductSlot(ctx, slotFixture(10, 150, 5)))
	require.NoError(t, s.UpsertProductSlot(ctx, slotFixture(3, 200, 2)))
	// 同货道整行覆盖
	require.NoError(t, s.UpsertProductSlot(ctx, slotFixture(10, 180, 4)))

	slots, err := s.ListProductSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.Equal(t, int32(3), slots[0].SelectionID)
	require.Equal(t, int32(10), slots[1].SelectionID)
	require.Equal(t, int64(180), slots[1].Price)
	require.Equal(t, int16(4), slots[1].Inventory)
}

func TestStore_ListCommandsRecentFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = s.Enqueue(ctx, 0x31, nil)
	}
	out, err := s.ListCommands(ctx, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, int64(5), out[0].ID)
	require.Equal(t, int64(3), out[2].ID)
}
