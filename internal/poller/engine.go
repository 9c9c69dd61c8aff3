package poller

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/vmc-middleware/internal/metrics"
	"github.com/taoyao-code/vmc-middleware/internal/protocol/vmc"
	"github.com/taoyao-code/vmc-middleware/internal/seriallink"
	"github.com/taoyao-code/vmc-middleware/internal/storage"
)

// pendingAction 在途业务事务上下文（全局单槽）
// 协议中上行数据帧不携带任何事务标识，总线同一时刻只允许一笔在途业务，
// 这个槽位就是应答关联器唯一可用的关联键。每次下发新指令时整体替换
type pendingAction struct {
	commandID   int64
	opcode      byte
	awaitingAck bool
}

// Engine 轮询周期引擎
// 独占物理链路的唯一实例；严格顺序的 读→判→写 循环，内部无并行。
// 节奏由设备掌握：设备按自己的周期下发POLL，引擎只做响应。
// 丢ACK的判定放在下一个POLL事件（而非发送后原地阻塞读）：
// 不浪费从机狭窄的应答窗口，代价是一个轮询周期的检测延迟
type Engine struct {
	store storage.Store
	corr  *Correlator
	log   *zap.Logger
	met   *metrics.AppMetrics

	seq     packCounter
	pending *pendingAction
	w       io.Writer // 当前链路写端，serve期间有效
}

// New 创建引擎；met 可为 nil（测试）
func New(store storage.Store, logger *zap.Logger, met *metrics.AppMetrics) *Engine {
	return &Engine{
		store: store,
		corr:  NewCorrelator(store, logger, met),
		log:   logger,
		met:   met,
		seq:   newPackCounter(),
	}
}

// Run 主循环：打开链路→消费帧，链路丢失按固定间隔无限重连，进程永不退出
func (e *Engine) Run(ctx context.Context, opener seriallink.Opener, retryInterval time.Duration) {
	if retryInterval <= 0 {
		retryInterval = 5 * time.Second
	}
	for ctx.Err() == nil {
		port, err := opener.Open()
		if err != nil {
			e.log.Error("link open failed", zap.Error(err), zap.Duration("retry_in", retryInterval))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryInterval):
			}
			continue
		}
		e.log.Info("link established")
		if e.met != nil {
			e.met.LinkReconnects.Inc()
		}
		e.serve(ctx, port)
		_ = port.Close()
	}
}

// serve 单条链路上的消费循环；返回即表示链路需要重建
// 每次进入都新建解码器：重连后不保留任何读缓冲状态
func (e *Engine) serve(ctx context.Context, port io.ReadWriteCloser) {
	dec := vmc.NewDecoder(port)
	e.w = port
	for ctx.Err() == nil {
		fr, err := dec.Next()
		if err != nil {
			if seriallink.IsTimeout(err) {
				// 安静线路：本轮无帧，回到循环顶端等下一个POLL
				continue
			}
			e.log.Warn("link read failed", zap.Error(err))
			return
		}
		if fr == nil {
			// 半包或校验失败：整帧丢弃，无副作用
			if e.met != nil {
				e.met.FrameTotal.WithLabelValues("dropped").Inc()
			}
			continue
		}
		if e.met != nil {
			e.met.FrameTotal.WithLabelValues("ok").Inc()
		}
		e.HandleFrame(ctx, fr)
	}
}

// HandleFrame 处理一帧；任何单帧的畸形都不允许让循环崩溃
func (e *Engine) HandleFrame(ctx context.Context, fr *vmc.Frame) {
	switch fr.Opcode {
	case vmc.OpPoll:
		e.handlePoll(ctx)
	case vmc.OpAck:
		e.handleAck(ctx)
	default:
		e.handleData(ctx, fr)
	}
}

// handlePoll 一个轮询周期的起点也是上个周期的终点
func (e *Engine) handlePoll(ctx context.Context) {
	if e.met != nil {
		e.met.PollTotal.Inc()
	}

	// 1) 结算上个周期：还在等ACK说明ACK丢了
	if e.pending != nil && e.pending.awaitingAck {
		e.log.Warn("missed ack, scheduling retry", zap.Int64("command_id", e.pending.commandID))
		if e.met != nil {
			e.met.RetryTotal.Inc()
		}
		next, err := e.store.IncrementRetry(ctx, e.pending.commandID)
		if err != nil {
			e.log.Error("increment retry failed", zap.Int64("command_id", e.pending.commandID), zap.Error(err))
		} else if next == storage.StatusFailed {
			e.log.Error("command failed after max retries", zap.Int64("command_id", e.pending.commandID))
			if e.met != nil {
				e.met.CommandResolved.WithLabelValues(string(storage.StatusFailed)).Inc()
			}
			e.pending = nil
		}
		// next==SENDING时保留pending：下面会以同一pack号重发
	}
	// 传输层等待随POLL清零；业务上下文可能仍在等终结帧（多段出货），不能盲清
	if e.pending != nil {
		e.pending.awaitingAck = false
	}

	// 2) 取下一条可下发指令（SENDING优先，防止重试被饿死）
	cmd, err := e.store.FetchNextDispatchable(ctx)
	if err != nil {
		e.log.Error("fetch next dispatchable failed", zap.Error(err))
		return
	}
	if cmd == nil {
		// 3b) 队列为空：以ACK作为空闲心跳
		e.write(vmc.BuildAck())
		return
	}

	// 3a) 下发：新指令分配当前pack号；重试复用原pack号（幂等重传）
	seq := e.seq.Current()
	if cmd.Status == string(storage.StatusPending) {
		if err := e.store.MarkSending(ctx, cmd.ID, seq); err != nil {
			e.log.Error("mark sending failed", zap.Int64("command_id", cmd.ID), zap.Error(err))
			return
		}
	} else if cmd.AssignedSeq != nil {
		seq = uint8(*cmd.AssignedSeq)
	}

	e.write(vmc.Build(byte(cmd.Opcode), seq, cmd.Payload))
	e.pending = &pendingAction{commandID: cmd.ID, opcode: byte(cmd.Opcode), awaitingAck: true}
	e.log.Info("command dispatched",
		zap.Int64("command_id", cmd.ID),
		zap.Uint8("opcode", uint8(cmd.Opcode)),
		zap.Uint8("seq", seq),
		zap.Int32("retry", cmd.RetryCount))
}

// handleAck 传输层回执：指令已被设备收到，业务结果随后由数据帧回填
func (e *Engine) handleAck(ctx context.Context) {
	if e.pending == nil || !e.pending.awaitingAck {
		e.log.Debug("stray ack ignored")
		return
	}
	if err := e.store.RecordResult(ctx, e.pending.commandID, storage.StatusAcked, "", nil); err != nil {
		e.log.Error("record acked failed", zap.Int64("command_id", e.pending.commandID), zap.Error(err))
	}
	e.pending.awaitingAck = false
	// 确认送达后才推进pack号
	e.seq.Advance()
	e.log.Info("ack received", zap.Int64("command_id", e.pending.commandID), zap.Uint8("next_seq", e.seq.Current()))
}

// handleData 业务数据帧：先关联，再无条件回ACK（协议要求每个数据帧都必须确认）
func (e *Engine) handleData(ctx context.Context, fr *vmc.Frame) {
	terminal := e.corr.Handle(ctx, fr, e.pending)
	e.write(vmc.BuildAck())
	if terminal {
		// 只有终结帧才关闭业务上下文；中间态继续用同一槽位关联后续帧
		e.pending = nil
	}
}

func (e *Engine) write(frame []byte) {
	if e.w == nil {
		return
	}
	n, err := e.w.Write(frame)
	if err != nil {
		e.log.Warn("link write failed", zap.Error(err))
		return
	}
	if e.met != nil {
		e.met.BytesWritten.Add(float64(n))
	}
}
