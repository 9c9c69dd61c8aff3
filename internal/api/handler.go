package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/vmc-middleware/internal/protocol/vmc"
	"github.com/taoyao-code/vmc-middleware/internal/service"
	"github.com/taoyao-code/vmc-middleware/internal/storage"
)

// Handler 请求面处理器
// 薄CRUD胶水：写入指令队列、读取投影缓存；协议细节全部在引擎侧
type Handler struct {
	store  storage.Store
	waiter *service.CommandWaiter
	logger *zap.Logger
}

// NewHandler 创建请求面处理器
func NewHandler(store storage.Store, waiter *service.CommandWaiter, logger *zap.Logger) *Handler {
	return &Handler{store: store, waiter: waiter, logger: logger}
}

// enqueue 入队并按 wait 参数选择异步/同步两种应答形态
// 异步：202 + command_id，客户端轮询 /api/command/:id
// 同步：轮询库到终态或超时；超时返回504（独立于业务失败的结局）
func (h *Handler) enqueue(c *gin.Context, action string, opcode byte, payload []byte) {
	id, err := h.store.Enqueue(c.Request.Context(), opcode, payload)
	if err != nil {
		h.logger.Error("enqueue failed", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, gin.H{
			"status":     "accepted",
			"command_id": id,
			"action":     action,
		})
		return
	}

	outcome, cmd, err := h.waiter.Wait(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcome == service.OutcomeTimeout {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"status":     "timeout",
			"error":      "vmc did not respond in time",
			"command_id": id,
			"action":     action,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     string(outcome),
		"command_id": id,
		"action":     action,
		"result":     rawResult(cmd.CompletionResult),
	})
}

func rawResult(s *string) any {
	if s == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(*s), &v); err != nil {
		return *s
	}
	return v
}

type selectionReq struct {
	Selection uint16 `json:"selection" binding:"required"`
}

// Buy 标准购买（0x03）
func (h *Handler) Buy(c *gin.Context) {
	var req selectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing selection"})
		return
	}
	h.enqueue(c, "DISPENSE", vmc.OpDispense, vmc.DispensePayload(req.Selection))
}

// Drive 电机直驱（0x06），绕过部分VMC逻辑强转电机
func (h *Handler) Drive(c *gin.Context) {
	var req selectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing selection"})
		return
	}
	h.enqueue(c, "DIRECT_DRIVE", vmc.OpDriveDirect, vmc.DriveDirectPayload(req.Selection))
}

// Deduct 扣款（0x64）
func (h *Handler) Deduct(c *gin.Context) {
	var req struct {
		Amount uint32 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	h.enqueue(c, "DEDUCT_MONEY", vmc.OpDeductMoney, vmc.DeductPayload(req.Amount))
}

// Cancel 撤销交易（0x64，金额0）
func (h *Handler) Cancel(c *gin.Context) {
	h.enqueue(c, "CANCEL_TRANSACTION", vmc.OpDeductMoney, vmc.CancelPayload())
}

// Sync 触发整机信息同步（0x31），引擎会收到一串0x11上报填充货道表
func (h *Handler) Sync(c *gin.Context) {
	h.enqueue(c, "INFO_SYNC", vmc.OpInfoSync, vmc.InfoSyncPayload())
}

// SetPrice 设置货道单价（0x12）
func (h *Handler) SetPrice(c *gin.Context) {
	var req struct {
		Selection uint16 `json:"selection" binding:"required"`
		Price     uint32 `json:"price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing selection or price"})
		return
	}
	h.enqueue(c, "SET_PRICE", vmc.OpSetPrice, vmc.SetPricePayload(req.Selection, req.Price))
}

// SetInventory 设置货道库存（0x13）
func (h *Handler) SetInventory(c *gin.Context) {
	var req struct {
		Selection uint16 `json:"selection" binding:"required"`
		Inventory uint8  `json:"inventory" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing selection or inventory"})
		return
	}
	h.enqueue(c, "SET_INVENTORY", vmc.OpSetInventory, vmc.SetInventoryPayload(req.Selection, req.Inventory))
}

// SetCapacity 设置货道容量（0x14）
func (h *Handler) SetCapacity(c *gin.Context) {
	var req struct {
		Selection uint16 `json:"selection" binding:"required"`
		Capacity  uint8  `json:"capacity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing selection or capacity"})
		return
	}
	h.enqueue(c, "SET_CAPACITY", vmc.OpSetCapacity, vmc.SetCapacityPayload(req.Selection, req.Capacity))
}

// QuerySlotConfig 实时查询货道配置（0x42，经0x71复用应答返回）
func (h *Handler) QuerySlotConfig(c *gin.Context) {
	sel, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selection id"})
		return
	}
	h.enqueue(c, "QUERY_CONFIG", vmc.OpQuerySlotCfg, vmc.QuerySlotCfgPayload(uint16(sel)))
}

// QueryDailySales 查询当日销量（0x43），日期取服务器当天
func (h *Handler) QueryDailySales(c *gin.Context) {
	today, _ := strconv.ParseUint(time.Now().Format("20060102"), 10, 32)
	h.enqueue(c, "QUERY_SALES", vmc.OpQuerySales, vmc.QuerySalesPayload(uint32(today)))
}

// QueryStatus 触发整机状态上报（0x51，应答0x52落入vmc_status投影）
func (h *Handler) QueryStatus(c *gin.Context) {
	h.enqueue(c, "QUERY_STATUS", vmc.OpQueryStatus, vmc.QueryStatusPayload())
}

// ListProducts 读货道投影缓存（无串口延迟）
func (h *Handler) ListProducts(c *gin.Context) {
	slots, err := h.store.ListProductSlots(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(slots), "products": slots})
}

// MachineStatus 读整机状态投影缓存（温度/门磁/找零余量等）
func (h *Handler) MachineStatus(c *gin.Context) {
	entries, err := h.store.ListMachineStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := make(map[string]string, len(entries))
	for _, e := range entries {
		status[e.Key] = e.Value
	}
	c.JSON(http.StatusOK, status)
}

// CommandStatus 查询单条指令的状态与结构化结果
func (h *Handler) CommandStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command id"})
		return
	}
	cmd, err := h.store.GetCommand(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          cmd.ID,
		"status":      cmd.Status,
		"retry_count": cmd.RetryCount,
		"details":     rawResult(cmd.CompletionResult),
	})
}
