package storage

import (
	"context"
	"errors"

	"github.com/taoyao-code/vmc-middleware/internal/storage/models"
)

// ErrNotFound 目标记录不存在
var ErrNotFound = errors.New("record not found")

// Status 指令状态机
// PENDING → SENDING → ACKED → {ACCEPTED|DISPENSING}* → COMPLETED | FAILED
// PENDING/SENDING 也可因重试耗尽直接到 FAILED；终态不可再变
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSending    Status = "SENDING"
	StatusAcked      Status = "ACKED"
	StatusAccepted   Status = "ACCEPTED"
	StatusDispensing Status = "DISPENSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MaxRetries 传输层重试上限：第5次丢ACK后指令判定失败
const MaxRetries = 5

// CommandStore 指令队列契约
// 轮询引擎与请求面共享的唯一协调点；所有变更各自独立成一个事务，
// 并发读方永远不会看到半截更新的指令行
type CommandStore interface {
	// Enqueue 入队一条下行指令，返回单调递增的指令ID
	Enqueue(ctx context.Context, opcode byte, payload []byte) (int64, error)
	// FetchNextDispatchable 取下一条可下发指令：SENDING优先于PENDING，同状态按ID升序。
	// 队列为空返回 (nil, nil)
	FetchNextDispatchable(ctx context.Context) (*models.Command, error)
	// MarkSending 指令首发：记录分配的pack号并置为SENDING
	MarkSending(ctx context.Context, id int64, seq uint8) error
	// RecordResult 回填业务结果；对已处终态的行是无操作（终态不可变）
	RecordResult(ctx context.Context, id int64, status Status, rawHex string, result any) error
	// IncrementRetry 丢ACK计数+1，达到上限时置FAILED；返回新状态
	IncrementRetry(ctx context.Context, id int64) (Status, error)
	// GetCommand 按ID读取指令
	GetCommand(ctx context.Context, id int64) (*models.Command, error)
	// ListCommands 按ID倒序返回最近指令
	ListCommands(ctx context.Context, limit int) ([]models.Command, error)
}

// ProjectionStore 设备状态投影契约（仅由应答关联器写入）
type ProjectionStore interface {
	// UpsertProductSlot 整行覆盖一个货道
	UpsertProductSlot(ctx context.Context, slot models.ProductSlot) error
	// ListProductSlots 按货道号升序返回全部货道
	ListProductSlots(ctx context.Context) ([]models.ProductSlot, error)
	// SetMachineStatus 写入/覆盖一条整机状态键值
	SetMachineStatus(ctx context.Context, key, value, rawHex string) error
	// ListMachineStatus 返回全部整机状态键值
	ListMachineStatus(ctx context.Context) ([]models.MachineStatusEntry, error)
	// LogEvent 记录未匹配/未识别帧事件
	LogEvent(ctx context.Context, eventType, rawHex string, parsed any) error
}

// Store 引擎所需的完整存储能力
type Store interface {
	CommandStore
	ProjectionStore
}
