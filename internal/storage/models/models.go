package models

import (
	"time"
)

// 注意：
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt
// - 指令行只终态化、从不删除

// Command 映射 command_queue 表（下行指令队列）
type Command struct {
	// 主键，单调递增
	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// 命令码
	Opcode int16 `gorm:"column:opcode;not null" json:"opcode"`
	// 命令码专属的不透明载荷（不含pack号）
	Payload []byte `gorm:"column:payload" json:"-"`
	// 状态机取值见 storage.Status
	Status string `gorm:"column:status;type:text;not null;default:'PENDING';index:idx_cmd_status_id,priority:1" json:"status"`
	// 丢ACK重试计数
	RetryCount int32 `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	// 下发时分配的pack号（1..255），首发前为空
	AssignedSeq *int16 `gorm:"column:assigned_seq" json:"assigned_seq,omitempty"`
	// 原始应答（hex），仅记录不解释
	ResponseRaw *string `gorm:"column:response_raw;type:text" json:"response_raw,omitempty"`
	// 结构化完成结果（JSON）
	CompletionResult *string `gorm:"column:completion_result;type:text" json:"completion_result,omitempty"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Command) TableName() string { return "command_queue" }

// ProductSlot 映射 products 表（货道投影，0x11整行覆盖）
type ProductSlot struct {
	// 货道号
	SelectionID int32 `gorm:"column:selection_id;primaryKey" json:"selection_id"`
	// 单价（最小货币单位）
	Price int64 `gorm:"column:price" json:"price"`
	// 库存
	Inventory int16 `gorm:"column:inventory" json:"inventory"`
	// 容量
	Capacity int16 `gorm:"column:capacity" json:"capacity"`
	// VMC内部商品ID
	ProductID int32 `gorm:"column:product_id" json:"product_id"`
	// 0=正常 1=停用
	Status    int16     `gorm:"column:status" json:"status"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ProductSlot) TableName() string { return "products" }

// MachineStatusEntry 映射 vmc_status 表（整机状态键值投影）
type MachineStatusEntry struct {
	Key       string    `gorm:"column:key;primaryKey;type:text" json:"key"`
	Value     string    `gorm:"column:value;type:text" json:"value"`
	RawHex    string    `gorm:"column:raw_hex;type:text" json:"raw_hex"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (MachineStatusEntry) TableName() string { return "vmc_status" }

// EventLog 映射 event_log 表（未匹配/未识别帧兜底）
type EventLog struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventType  string    `gorm:"column:event_type;type:text" json:"event_type"`
	RawData    string    `gorm:"column:raw_data;type:text" json:"raw_data"`
	ParsedData string    `gorm:"column:parsed_data;type:text" json:"parsed_data"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (EventLog) TableName() string { return "event_log" }
