package service

import (
	"context"
	"time"

	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/models"
)

// WaitOutcome 同步等待的三种结局
// 超时是独立结局：指令可能仍在途，与业务失败严格区分
type WaitOutcome string

const (
	OutcomeCompleted WaitOutcome = "COMPLETED"
	OutcomeFailed    WaitOutcome = "FAILED"
	OutcomeTimeout   WaitOutcome = "TIMEOUT"
)

// CommandWaiter 队列之上的同步便利层：按固定间隔轮询指令状态
// 直到终态或墙钟超时。不属于协议引擎，只是请求面的体验封装
type CommandWaiter struct {
	store    storage.CommandStore
	interval time.Duration
	timeout  time.Duration
}

// NewCommandWaiter 创建等待器
func NewCommandWaiter(store storage.CommandStore, interval, timeout time.Duration) *CommandWaiter {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CommandWaiter{store: store, interval: interval, timeout: timeout}
}

// Wait 阻塞直到指令到达终态或超时
// ACKED不算完成（只说明设备收到了），必须等COMPLETED/FAILED
func (w *CommandWaiter) Wait(ctx context.Context, id int64) (WaitOutcome, *models.Command, error) {
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		cmd, err := w.store.GetCommand(ctx, id)
		if err != nil {
			return "", nil, err
		}
		switch storage.Status(cmd.Status) {
		case storage.StatusCompleted:
			return OutcomeCompleted, cmd, nil
		case storage.StatusFailed:
			return OutcomeFailed, cmd, nil
		}

		select {
		case <-ctx.Done():
			return OutcomeTimeout, cmd, nil
		case <-deadline.C:
			return OutcomeTimeout, cmd, nil
		case <-tick.C:
		}
	}
}
