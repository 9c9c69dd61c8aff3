package gormrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/vmc-middleware/internal/storage"
	"github.com/taoyao-code/vmc-middleware/internal/storage/models"
)

// Repository 基于 GORM 的 storage.Store 实现
// 每个变更方法自成一个事务/原子语句：引擎与请求面的并发读方
// 不会观察到半截更新的指令行
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的 Store 实例
func New(db *gorm.DB) storage.Store {
	return &Repository{db: db}
}

// AutoMigrate 建表（command_queue / products / vmc_status / event_log）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Command{},
		&models.ProductSlot{},
		&models.MachineStatusEntry{},
		&models.EventLog{},
	)
}

// Enqueue 入队一条下行指令
func (r *Repository) Enqueue(ctx context.Context, opcode byte, payload []byte) (int64, error) {
	record := &models.Command{
		Opcode:  int16(opcode),
		Payload: payload,
		Status:  string(storage.StatusPending),
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

// FetchNextDispatchable 取下一条可下发指令
// 优先级：SENDING（重试中）先于PENDING，同状态按ID升序——
// 保证全库最多一条指令在途，且卡住的重试不会被新指令饿死
func (r *Repository) FetchNextDispatchable(ctx context.Context) (*models.Command, error) {
	var cmd models.Command
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(storage.StatusPending), string(storage.StatusSending)}).
		Order("CASE WHEN status = 'SENDING' THEN 0 ELSE 1 END, id ASC").
		First(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// MarkSending 指令首发：记录pack号并置SENDING
func (r *Repository) MarkSending(ctx context.Context, id int64, seq uint8) error {
	assigned := int16(seq)
	return r.db.WithContext(ctx).
		Model(&models.Command{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       string(storage.StatusSending),
			"assigned_seq": assigned,
			"updated_at":   time.Now(),
		}).Error
}

// RecordResult 回填业务结果
// WHERE 子句排除终态行：终态一经写入不可再变，迟到的状态帧静默落空
func (r *Repository) RecordResult(ctx context.Context, id int64, status storage.Status, rawHex string, result any) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	}
	if rawHex != "" {
		updates["response_raw"] = rawHex
	}
	if result != nil {
		buf, err := json.Marshal(result)
		if err != nil {
			return err
		}
		s := string(buf)
		updates["completion_result"] = s
	}
	return r.db.WithContext(ctx).
		Model(&models.Command{}).
		Where("id = ? AND status NOT IN ?", id,
			[]string{string(storage.StatusCompleted), string(storage.StatusFailed)}).
		Updates(updates).Error
}

// IncrementRetry 丢ACK计数+1，达上限置FAILED
// SELECT ... FOR UPDATE 保证计数不会因并发读改写而丢失
func (r *Repository) IncrementRetry(ctx context.Context, id int64) (storage.Status, error) {
	var next storage.Status
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cmd models.Command
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&cmd).Error; err != nil {
			return err
		}
		count := cmd.RetryCount + 1
		next = storage.StatusSending
		if count >= storage.MaxRetries {
			next = storage.StatusFailed
		}
		return tx.Model(&models.Command{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"retry_count": count,
				"status":      string(next),
				"updated_at":  time.Now(),
			}).Error
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// GetCommand 按ID读取指令
func (r *Repository) GetCommand(ctx context.Context, id int64) (*models.Command, error) {
	var cmd models.Command
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// ListCommands 按ID倒序返回最近指令
func (r *Repository) ListCommands(ctx context.Context, limit int) ([]models.Command, error) {
	var cmds []models.Command
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}

// UpsertProductSlot 整行覆盖一个货道（0x11上报）
func (r *Repository) UpsertProductSlot(ctx context.Context, slot models.ProductSlot) error {
	slot.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "selection_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"price", "inventory", "capacity", "product_id", "status", "updated_at",
			}),
		}).
		Create(&slot).Error
}

// ListProductSlots 按货道号升序返回全部货道
func (r *Repository) ListProductSlots(ctx context.Context) ([]models.ProductSlot, error) {
	var slots []models.ProductSlot
	if err := r.db.WithContext(ctx).Order("selection_id ASC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// SetMachineStatus 写入/覆盖一条整机状态键值
func (r *Repository) SetMachineStatus(ctx context.Context, key, value, rawHex string) error {
	record := &models.MachineStatusEntry{
		Key:       key,
		Value:     value,
		RawHex:    rawHex,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "raw_hex", "updated_at"}),
		}).
		Create(record).Error
}

// ListMachineStatus 返回全部整机状态键值
func (r *Repository) ListMachineStatus(ctx context.Context) ([]models.MachineStatusEntry, error) {
	var entries []models.MachineStatusEntry
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LogEvent 记录未匹配/未识别帧事件
func (r *Repository) LogEvent(ctx context.Context, eventType, rawHex string, parsed any) error {
	parsedJSON := ""
	if parsed != nil {
		if buf, err := json.Marshal(parsed); err == nil {
			parsedJSON = string(buf)
		}
	}
	return r.db.WithContext(ctx).Create(&models.EventLog{
		EventType:  eventType,
		RawData:    rawHex,
		ParsedData: parsedJSON,
	}).Error
}
