package poller

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/taoyao-code/vmc-middleware/internal/metrics"
	"github.com/taoyao-code/vmc-middleware/internal/protocol/vmc"
	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/models"
)

// Correlator 应答关联器
// 上行数据帧不带事务标识，只能按命令码解释，并对照在途上下文
// 决定归属：匹配则回填指令结果，不匹配则落事件日志。
// 任何一帧的畸形都只丢弃该帧的更新，绝不向轮询循环外抛错
type Correlator struct {
	store storage.Store
	log   *zap.Logger
	met   *metrics.AppMetrics
}

// NewCorrelator 创建应答关联器
func NewCorrelator(store storage.Store, logger *zap.Logger, met *metrics.AppMetrics) *Correlator {
	return &Correlator{store: store, log: logger, met: met}
}

// Handle 处理一帧上行数据
// 返回true表示在途指令已到达终态（COMPLETED/FAILED），调用方据此关闭上下文
func (c *Correlator) Handle(ctx context.Context, fr *vmc.Frame, pending *pendingAction) bool {
	rawHex := strings.ToUpper(hex.EncodeToString(fr.Payload))
	if c.met != nil {
		c.met.RecordTotal.WithLabelValues(fmt.Sprintf("0x%02X", fr.Opcode)).Inc()
	}

	rec, err := vmc.DecodeRecord(fr.Opcode, fr.Body())
	if err != nil {
		// 定长记录不完整：拒绝本次更新，留痕后继续
		c.log.Warn("malformed record rejected",
			zap.Uint8("opcode", fr.Opcode), zap.String("raw", rawHex), zap.Error(err))
		c.logEvent(ctx, fmt.Sprintf("MALFORMED_0x%02X", fr.Opcode), rawHex, nil)
		return false
	}

	switch r := rec.(type) {
	case vmc.MoneyNotice:
		// 异步硬件事件，不关联任何指令
		c.log.Info("money notice", zap.Uint8("mode", r.Mode), zap.Uint32("amount", r.Amount))
		return false

	case vmc.ProductReport:
		return c.handleProductReport(ctx, r, rawHex)

	case vmc.SelectionCheck:
		return c.handleSelectionCheck(ctx, r, rawHex, pending)

	case vmc.DispenseStatus:
		return c.handleDispenseStatus(ctx, r, rawHex, pending)

	case vmc.MachineStatus:
		return c.handleMachineStatus(ctx, r, rawHex, pending)

	case vmc.GenericReturn:
		return c.handleGenericReturn(ctx, r, rawHex, pending)

	case vmc.UnknownRecord:
		c.log.Warn("unrecognized opcode", zap.Uint8("opcode", r.Opcode), zap.String("raw", rawHex))
		c.logEvent(ctx, fmt.Sprintf("CMD_0x%02X", r.Opcode), rawHex, nil)
		return false
	}
	return false
}

// handleProductReport 0x11 货道上报：整行覆盖投影，不做半截写入
func (c *Correlator) handleProductReport(ctx context.Context, r vmc.ProductReport, rawHex string) bool {
	err := c.store.UpsertProductSlot(ctx, toSlotModel(r))
	if err != nil {
		c.log.Error("product slot upsert failed",
			zap.Uint16("selection", r.Selection), zap.String("raw", rawHex), zap.Error(err))
	}
	return false
}

// handleSelectionCheck 0x02 货道检查：仅当在途指令是出货指令时回填
func (c *Correlator) handleSelectionCheck(ctx context.Context, r vmc.SelectionCheck, rawHex string, pending *pendingAction) bool {
	if pending == nil || pending.opcode != vmc.OpDispense {
		c.logEvent(ctx, "UNMATCHED_SELECTION_CHECK", rawHex, r)
		return false
	}
	status := storage.StatusAccepted
	if !r.OK() {
		status = storage.StatusFailed
	}
	c.resolve(ctx, pending.commandID, status, rawHex, r)
	return status.Terminal()
}

// handleDispenseStatus 0x04 出货状态：一次交易可多次上报，首个终结码生效
func (c *Correlator) handleDispenseStatus(ctx context.Context, r vmc.DispenseStatus, rawHex string, pending *pendingAction) bool {
	if pending == nil {
		c.logEvent(ctx, "UNMATCHED_DISPENSE_STATUS", rawHex, r)
		return false
	}
	switch {
	case r.Intermediate():
		// 电机仍在动作，不终结
		c.resolve(ctx, pending.commandID, storage.StatusDispensing, rawHex, r)
		return false
	case r.Success():
		c.resolve(ctx, pending.commandID, storage.StatusCompleted, rawHex, r)
		return true
	default:
		c.resolve(ctx, pending.commandID, storage.StatusFailed, rawHex, r)
		return true
	}
}

// handleMachineStatus 0x52 整机状态：逐字段投影；显式查询则同时终结指令
func (c *Correlator) handleMachineStatus(ctx context.Context, r vmc.MachineStatus, rawHex string, pending *pendingAction) bool {
	for _, f := range r.Fields() {
		if err := c.store.SetMachineStatus(ctx, f.Key, f.Value, rawHex); err != nil {
			c.log.Error("machine status projection failed", zap.String("key", f.Key), zap.Error(err))
		}
	}
	if pending != nil && pending.opcode == vmc.OpQueryStatus {
		c.resolve(ctx, pending.commandID, storage.StatusCompleted, rawHex, r)
		return true
	}
	return false
}

// handleGenericReturn 0x71 复用应答：子命令码等于在途opcode才允许回填
func (c *Correlator) handleGenericReturn(ctx context.Context, r vmc.GenericReturn, rawHex string, pending *pendingAction) bool {
	if pending == nil || r.SubCommand != pending.opcode {
		c.log.Warn("generic return without matching pending command",
			zap.Uint8("sub_command", r.SubCommand), zap.String("raw", rawHex))
		c.logEvent(ctx, "UNMATCHED_GENERIC_RETURN", rawHex, r)
		return false
	}
	status := storage.StatusCompleted
	if !r.Success() {
		status = storage.StatusFailed
	}
	c.resolve(ctx, pending.commandID, status, rawHex, r)
	return true
}

func (c *Correlator) resolve(ctx context.Context, id int64, status storage.Status, rawHex string, result any) {
	if err := c.store.RecordResult(ctx, id, status, rawHex, result); err != nil {
		c.log.Error("record result failed",
			zap.Int64("command_id", id), zap.String("status", string(status)), zap.Error(err))
		return
	}
	c.log.Info("command resolved", zap.Int64("command_id", id), zap.String("status", string(status)))
	if c.met != nil && status.Terminal() {
		c.met.CommandResolved.WithLabelValues(string(status)).Inc()
	}
}

func (c *Correlator) logEvent(ctx context.Context, eventType, rawHex string, parsed any) {
	if err := c.store.LogEvent(ctx, eventType, rawHex, parsed); err != nil {
		c.log.Error("event log failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func toSlotModel(r vmc.ProductReport) models.ProductSlot {
	return models.ProductSlot{
		SelectionID: int32(r.Selection),
		Price:       int64(r.Price),
		Inventory:   int16(r.Inventory),
		Capacity:    int16(r.Capacity),
		ProductID:   int32(r.ProductID),
		Status:      int16(r.Status),
	}
}
