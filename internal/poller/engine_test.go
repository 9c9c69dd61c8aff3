package poller

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/vmc-middleware/internal/protocol/vmc"
	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/memstore"
)

// 测试脚手架：引擎 + 内存Store + 可断言的写端
type testRig struct {
	engine *Engine
	store  *memstore.Store
	wire   *bytes.Buffer
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	store := memstore.New()
	e := New(store, zap.NewNop(), nil)
	wire := &bytes.Buffer{}
	e.w = wire
	return &testRig{engine: e, store: store, wire: wire}
}

func (r *testRig) poll() {
	r.engine.HandleFrame(context.Background(), &vmc.Frame{Opcode: vmc.OpPoll})
}

func (r *testRig) ack() {
	r.engine.HandleFrame(context.Background(), &vmc.Frame{Opcode: vmc.OpAck})
}

// data 构造携带设备侧pack号的上行数据帧
func (r *testRig) data(opcode byte, body ...byte) {
	payload := append([]byte{0x01}, body...)
	r.engine.HandleFrame(context.Background(), &vmc.Frame{Opcode: opcode, Payload: payload})
}

func (r *testRig) status(t *testing.T, id int64) storage.Status {
	t.Helper()
	cmd, err := r.store.GetCommand(context.Background(), id)
	require.NoError(t, err)
	return storage.Status(cmd.Status)
}

// drainFrames 解出写端积累的全部下行帧
func (r *testRig) drainFrames(t *testing.T) []*vmc.Frame {
	t.Helper()
	dec := vmc.NewDecoder(bytes.NewReader(r.wire.Bytes()))
	var out []*vmc.Frame
	for {
		fr, err := dec.Next()
		if err != nil || fr == nil {
			break
		}
		out = append(out, fr)
	}
	r.wire.Reset()
	return out
}

func TestEngine_IdleHeartbeat(t *testing.T) {
	// 队列为空时每个POLL回一个ACK心跳
	rig := newTestRig(t)
	rig.poll()

	frames := rig.drainFrames(t)
	require.Len(t, frames, 1)
	require.Equal(t, vmc.OpAck, frames[0].Opcode)
}

func TestEngine_DispatchAssignsSequence(t *testing.T) {
	rig := newTestRig(t)
	id, err := rig.store.Enqueue(context.Background(), vmc.OpDispense, vmc.DispensePayload(10))
	require.NoError(t, err)

	rig.poll()

	// 下发帧必须与标准向量完全一致（opcode 0x03 / seq 1 / 货道10）
	require.Equal(t, []byte{0xFA, 0xFB, 0x03, 0x03, 0x01, 0x00, 0x0A, 0x0A}, rig.wire.Bytes())
	require.Equal(t, storage.StatusSending, rig.status(t, id))

	cmd, err := rig.store.GetCommand(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, cmd.AssignedSeq)
	require.Equal(t, int16(1), *cmd.AssignedSeq)
}

func TestEngine_AckAdvancesSequence(t *testing.T) {
	rig := newTestRig(t)
	id, _ := rig.store.Enqueue(context.Background(), vmc.OpDispense, vmc.DispensePayload(10))

	rig.poll()
	rig.ack()

	require.Equal(t, storage.StatusAcked, rig.status(t, id))
	require.Equal(t, uint8(2), rig.engine.seq.Current())
}

func TestEngine_StrayAckIgnored(t *testing.T) {
	rig := newTestRig(t)
	rig.ack()
	// 没有在途指令时收到ACK只记日志，pack号不动
	require.Equal(t, uint8(1), rig.engine.seq.Current())
}

func TestEngine_EndToEndDispense(t *testing.T) {
	// 完整出货链路：入队→下发→ACK→货道检查→出货中→出货完成
	rig := newTestRig(t)
	id, _ := rig.store.Enqueue(context.Background(), vmc.OpDispense, vmc.DispensePayload(10))

	rig.poll()
	require.Equal(t, storage.StatusSending, rig.status(t, id))

	rig.ack()
	require.Equal(t, storage.StatusAcked, rig.status(t, id))
	require.Equal(t, uint8(2), rig.engine.seq.Current())

	rig.data(vmc.OpSelectionCheckResp, 0x01)
	require.Equal(t, storage.StatusAccepted, rig.status(t, id))

	rig.data(vmc.OpDispenseStatus, 0x01) // 电机启动，中间态
	require.Equal(t, storage.StatusDispensing, rig.status(t, id))

	rig.data(vmc.OpDispenseStatus, 0x02) // 掉货完成
	require.Equal(t, storage.StatusCompleted, rig.status(t, id))
	require.Nil(t, rig.engine.pending)

	// 终态之后迟到的状态帧不能改写结果
	rig.data(vmc.OpDispenseStatus, 0x55)
	require.Equal(t, storage.StatusCompleted, rig.status(t, id))

	// 每个数据帧都必须被ACK：4个上行数据帧 → 4个ACK回执
	var acks int
	for _, fr := range rig.drainFrames(t) {
		if fr.Opcode == vmc.OpAck {
			acks++
		}
	}
	require.Equal(t, 4, acks)
}

func TestEngine_DroppedAckRetryCeiling(t *testing.T) {
	// 连续5个周期丢ACK → FAILED，且每次重发用同一个pack号
	rig := newTestRig(t)
	id, _ := rig.store.Enqueue(context.Background(), vmc.OpDispense, vmc.DispensePayload(10))

	for i := 0; i < 6; i++ {
		rig.poll()
	}

	cmd, err := rig.store.GetCommand(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, string(storage.StatusFailed), cmd.Status)
	require.Equal(t, int32(5), cmd.RetryCount)
	require.Nil(t, rig.engine.pending)

	frames := rig.drainFrames(t)
	var dispatches []*vmc.Frame
	for _, fr := range frames {
		if fr.Opcode == vmc.OpDispense {
			dispatches = append(dispatches, fr)
		}
	}
	// 首发+4次重发，pack号全部为1（幂等重传）
	require.Len(t, dispatches, 5)
	for _, fr := range dispatches {
		require.Equal(t, byte(1), fr.Payload[0])
	}
	// 判定失败后的POLL回落到空闲心跳
	require.Equal(t, vmc.OpAck, frames[len(frames)-1].Opcode)

	// FAILED指令永远不会再被取出
	next, err := rig.store.FetchNextDispatchable(context.Background())
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestEngine_RetrySurvivesInterleavedEnqueue(t *testing.T) {
	// 重试中的指令不会被新入队的指令插队
	rig := newTestRig(t)
	first, _ := rig.store.Enqueue(context.Background(), vmc.OpDispense, vmc.DispensePayload(10))

	rig.poll() // 首发
	_, _ = rig.store.Enqueue(context.Background(), vmc.OpDispense, vmc.DispensePayload(20))
	rig.poll() // 丢ACK → 重发first

	frames := rig.drainFrames(t)
	require.Len(t, frames, 2)
	for _, fr := range frames {
		require.Equal(t, []byte{0x00, 0x0A}, fr.Body()) // 两次都是货道10
	}
	require.Equal(t, storage.StatusSending, rig.status(t, first))
}

func TestEngine_MachineStatusQueryCompletes(t *testing.T) {
	rig := newTestRig(t)
	id, _ := rig.store.Enqueue(context.Background(), vmc.OpQueryStatus, vmc.QueryStatusPayload())

	rig.poll()
	rig.ack()

	body := []byte{
		0x00, 0x00, 0x00, 0x00,
		0x05, 0x00,
		0x00, 0x00, 0x13, 0x88,
		0x00, 0x00, 0x07, 0xD0,
		'V', 'M', 'C', '-', '0', '0', '4', '2', 0x00, 0x00,
	}
	rig.data(vmc.OpMachineStatus, body...)

	require.Equal(t, storage.StatusCompleted, rig.status(t, id))

	// 九个字段全部逐项投影
	entries, err := rig.store.ListMachineStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 9)
}

func TestEngine_ProductReportUpsertsSlot(t *testing.T) {
	// 0x11上报不依赖在途指令，直接覆盖货道投影
	rig := newTestRig(t)
	rig.data(vmc.OpProductReport, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x96, 0x05, 0x0A, 0x00, 0x07, 0x00)

	slots, err := rig.store.ListProductSlots(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, int32(10), slots[0].SelectionID)
	require.Equal(t, int64(150), slots[0].Price)
	require.Equal(t, int16(5), slots[0].Inventory)
}

func TestEngine_GenericReturnCorrelation(t *testing.T) {
	rig := newTestRig(t)
	id, _ := rig.store.Enqueue(context.Background(), vmc.OpSetPrice, vmc.SetPricePayload(10, 150))

	rig.poll()
	rig.ack()

	// 子命令码不匹配：在途指令不动，落事件日志
	rig.data(vmc.OpGenericReturn, vmc.OpSetInventory, 0x01, 0x00)
	require.Equal(t, storage.StatusAcked, rig.status(t, id))
	require.NotEmpty(t, rig.store.Events())

	// 子命令码匹配：回填完成
	rig.data(vmc.OpGenericReturn, vmc.OpSetPrice, 0x01, 0x00)
	require.Equal(t, storage.StatusCompleted, rig.status(t, id))
}

func TestEngine_MalformedRecordRejected(t *testing.T) {
	// 0x11定长11字节，7字节的记录必须整体拒绝并留痕
	rig := newTestRig(t)
	rig.data(vmc.OpProductReport, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x96, 0x05)

	slots, err := rig.store.ListProductSlots(context.Background())
	require.NoError(t, err)
	require.Empty(t, slots)
	require.NotEmpty(t, rig.store.Events())

	// 数据帧无论好坏都要回ACK
	frames := rig.drainFrames(t)
	require.Len(t, frames, 1)
	require.Equal(t, vmc.OpAck, frames[0].Opcode)
}

func TestEngine_UnknownOpcodeLogged(t *testing.T) {
	rig := newTestRig(t)
	rig.data(0x99, 0xDE, 0xAD)

	events := rig.store.Events()
	require.Len(t, events, 1)
	require.Equal(t, "CMD_0x99", events[0].EventType)
}
