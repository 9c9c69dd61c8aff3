package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/models"
)

// Store storage.Store 的内存实现
// 供引擎/请求面的单元测试使用，语义与 gormrepo 保持一致
// （SENDING优先、终态不可变、原子读改写）
type Store struct {
	mu       sync.Mutex
	nextID   int64
	commands map[int64]*models.Command
	slots    map[int32]models.ProductSlot
	status   map[string]models.MachineStatusEntry
	events   []models.EventLog
}

// New 创建空的内存Store
func New() *Store {
	return &Store{
		nextID:   1,
		commands: make(map[int64]*models.Command),
		slots:    make(map[int32]models.ProductSlot),
		status:   make(map[string]models.MachineStatusEntry),
	}
}

var _ storage.Store = (*Store)(nil)

// Enqueue 入队一条下行指令
func (s *Store) Enqueue(_ context.Context, opcode byte, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	now := time.Now()
	s.commands[id] = &models.Command{
		ID:        id,
		Opcode:    int16(opcode),
		Payload:   append([]byte(nil), payload...),
		Status:    string(storage.StatusPending),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

// FetchNextDispatchable SENDING优先于PENDING，同状态按ID升序
func (s *Store) FetchNextDispatchable(_ context.Context) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Command
	for _, c := range s.commands {
		if c.Status != string(storage.StatusPending) && c.Status != string(storage.StatusSending) {
			continue
		}
		if best == nil || less(c, best) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func less(a, b *models.Command) bool {
	ra, rb := rank(a.Status), rank(b.Status)
	if ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

func rank(status string) int {
	if status == string(storage.StatusSending) {
		return 0
	}
	return 1
}

// MarkSending 指令首发：记录pack号并置SENDING
func (s *Store) MarkSending(_ context.Context, id int64, seq uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok {
		return storage.ErrNotFound
	}
	assigned := int16(seq)
	c.Status = string(storage.StatusSending)
	c.AssignedSeq = &assigned
	c.UpdatedAt = time.Now()
	return nil
}

// RecordResult 回填业务结果；终态行保持不变
func (s *Store) RecordResult(_ context.Context, id int64, status storage.Status, rawHex string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok {
		return storage.ErrNotFound
	}
	if storage.Status(c.Status).Terminal() {
		return nil
	}
	c.Status = string(status)
	if rawHex != "" {
		raw := rawHex
		c.ResponseRaw = &raw
	}
	if result != nil {
		buf, err := json.Marshal(result)
		if err != nil {
			return err
		}
		str := string(buf)
		c.CompletionResult = &str
	}
	c.UpdatedAt = time.Now()
	return nil
}

// IncrementRetry 丢ACK计数+1，达上限置FAILED
func (s *Store) IncrementRetry(_ context.Context, id int64) (storage.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	c.RetryCount++
	next := storage.StatusSending
	if c.RetryCount >= storage.MaxRetries {
		next = storage.StatusFailed
	}
	c.Status = string(next)
	c.UpdatedAt = time.Now()
	return next, nil
}

// GetCommand 按ID读取指令
func (s *Store) GetCommand(_ context.Context, id int64) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCommands 按ID倒序返回最近指令
func (s *Store) ListCommands(_ context.Context, limit int) ([]models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Command, 0, len(s.commands))
	for _, c := range s.commands {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertProductSlot 整行覆盖一个货道
func (s *Store) UpsertProductSlot(_ context.Context, slot models.ProductSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot.UpdatedAt = time.Now()
	s.slots[slot.SelectionID] = slot
	return nil
}

// ListProductSlots 按货道号升序返回全部货道
func (s *Store) ListProductSlots(_ context.Context) ([]models.ProductSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProductSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SelectionID < out[j].SelectionID })
	return out, nil
}

// SetMachineStatus 写入/覆盖一条整机状态键值
func (s *Store) SetMachineStatus(_ context.Context, key, value, rawHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = models.MachineStatusEntry{Key: key, Value: value, RawHex: rawHex, UpdatedAt: time.Now()}
	return nil
}

// ListMachineStatus 返回全部整机状态键值
func (s *Store) ListMachineStatus(_ context.Context) ([]models.MachineStatusEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MachineStatusEntry, 0, len(s.status))
	for _, e := range s.status {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// LogEvent 记录未匹配/未识别帧事件
func (s *Store) LogEvent(_ context.Context, eventType, rawHex string, parsed any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parsedJSON := ""
	if parsed != nil {
		if buf, err := json.Marshal(parsed); err == nil {
			parsedJSON = string(buf)
		}
	}
	s.events = append(s.events, models.EventLog{
		ID:         int64(len(s.events) + 1),
		EventType:  eventType,
		RawData:    rawHex,
		ParsedData: parsedJSON,
		CreatedAt:  time.Now(),
	})
	return nil
}

// Events 返回事件日志副本（测试断言用）
func (s *Store) Events() []models.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EventLog(nil), s.events...)
}
