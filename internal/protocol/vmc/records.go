package vmc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedRecord 数据体长度与该命令码的定长记录不符
	ErrMalformedRecord = errors.New("malformed record")
)

// Record 上行记录的和类型（sealed）
// 新命令码的接入必须在 DecodeRecord 的switch中显式出现，编译期可查；
// 未识别命令码落到 UnknownRecord，绝不panic、绝不改写指令状态。
type Record interface {
	isRecord()
}

// MoneyNotice 收款通知（0x21）：异步硬件事件，不关联任何指令
type MoneyNotice struct {
	Mode   byte   `json:"mode"`
	Amount uint32 `json:"amount"`
}

// ProductReport 货道信息上报（0x11）：整行覆盖对应货道
type ProductReport struct {
	Selection uint16 `json:"selection"`
	Price     uint32 `json:"price"`
	Inventory uint8  `json:"inventory"`
	Capacity  uint8  `json:"capacity"`
	ProductID uint16 `json:"product_id"`
	Status    uint8  `json:"status"`
}

// SelectionCheck 货道检查结果（0x02）
type SelectionCheck struct {
	Code byte `json:"status_code"`
}

// OK 0x01为正常，其余均为异常
func (r SelectionCheck) OK() bool { return r.Code == 0x01 }

// DispenseStatus 出货/电机状态（0x04），一次交易可多次上报
type DispenseStatus struct {
	Code byte `json:"code"`
}

// Success 成功集合
func (r DispenseStatus) Success() bool { return r.Code == 0x02 || r.Code == 0x24 }

// Intermediate 中间态集合（电机仍在动作，不终结指令）
func (r DispenseStatus) Intermediate() bool {
	switch r.Code {
	case 0x01, 0x10, 0x11, 0x12, 0x13:
		return true
	}
	return false
}

// MachineStatus 整机状态（0x52），定长24字节：
// billErr(1)+coinErr(1)+motorErr(1)+tempErr(1)+temperature(1,有符号)+door(1)
// +billChangeTotal(4)+coinChangeTotal(4)+machineID(10,ASCII右补齐)
type MachineStatus struct {
	BillError       byte   `json:"bill_error"`
	CoinError       byte   `json:"coin_error"`
	MotorError      byte   `json:"motor_error"`
	TempError       byte   `json:"temp_error"`
	Temperature     int8   `json:"temperature"`
	DoorOpen        bool   `json:"door_open"`
	BillChangeTotal uint32 `json:"bill_change_total"`
	CoinChangeTotal uint32 `json:"coin_change_total"`
	MachineID       string `json:"machine_id"`
}

const machineStatusLen = 24

// StatusField 整机状态的单字段投影
type StatusField struct {
	Key   string
	Value string
}

// Fields 按字段展开，供逐项写入 vmc_status 投影表
func (r MachineStatus) Fields() []StatusField {
	door := "closed"
	if r.DoorOpen {
		door = "open"
	}
	return []StatusField{
		{Key: "bill_error", Value: fmt.Sprintf("0x%02X", r.BillError)},
		{Key: "coin_error", Value: fmt.Sprintf("0x%02X", r.CoinError)},
		{Key: "motor_error", Value: fmt.Sprintf("0x%02X", r.MotorError)},
		{Key: "temp_error", Value: fmt.Sprintf("0x%02X", r.TempError)},
		{Key: "temperature", Value: fmt.Sprintf("%d", r.Temperature)},
		{Key: "door_state", Value: door},
		{Key: "bill_change_total", Value: fmt.Sprintf("%d", r.BillChangeTotal)},
		{Key: "coin_change_total", Value: fmt.Sprintf("%d", r.CoinChangeTotal)},
		{Key: "machine_id", Value: r.MachineID},
	}
}

// SetResult 0x71中"设置类"子命令（0x12~0x15）的确认结果
type SetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SlotConfig 0x71中货道配置查询（子命令0x42）的应答记录
type SlotConfig struct {
	Price     uint32 `json:"price"`
	Inventory uint8  `json:"inventory"`
	Capacity  uint8  `json:"capacity"`
	ProductID uint16 `json:"product_id"`
	MotorMode uint8  `json:"motor_mode"`
}

// SalesReport 0x71中销量查询（子命令0x43）的应答记录
type SalesReport struct {
	TotalCount   uint32 `json:"total_sales_count"`
	TotalRevenue uint32 `json:"total_revenue"`
}

// GenericReturn 通用复用应答（0x71）
// 结构：subCmd(1) + opType(1) + 随子命令而异的定长记录
// 只有 SubCommand 与在途指令的opcode相等时才允许回填结果
type GenericReturn struct {
	SubCommand byte         `json:"sub_command"`
	OpType     byte         `json:"op_type"`
	Set        *SetResult   `json:"set,omitempty"`
	SlotCfg    *SlotConfig  `json:"slot_config,omitempty"`
	Sales      *SalesReport `json:"sales,omitempty"`
}

// Success 应答是否判定为成功（查询类只要记录完整即成功）
func (r GenericReturn) Success() bool {
	if r.Set != nil {
		return r.Set.Success
	}
	return true
}

// UnknownRecord 未识别命令码，原始字节交由事件日志兜底
type UnknownRecord struct {
	Opcode byte
	Body   []byte
}

func (MoneyNotice) isRecord()    {}
func (ProductReport) isRecord()  {}
func (SelectionCheck) isRecord() {}
func (DispenseStatus) isRecord() {}
func (MachineStatus) isRecord()  {}
func (GenericReturn) isRecord()  {}
func (UnknownRecord) isRecord()  {}

// DecodeRecord 按命令码解码上行数据体（body不含对端pack号）
// 定长不足时返回 ErrMalformedRecord，绝不产生半截写入
func DecodeRecord(opcode byte, body []byte) (Record, error) {
	switch opcode {
	case OpMoneyNotice:
		if len(body) < 5 {
			return nil, ErrMalformedRecord
		}
		return MoneyNotice{Mode: body[0], Amount: binary.BigEndian.Uint32(body[1:5])}, nil

	case OpProductReport:
		if len(body) < 11 {
			return nil, ErrMalformedRecord
		}
		return ProductReport{
			Selection: binary.BigEndian.Uint16(body[0:2]),
			Price:     binary.BigEndian.Uint32(body[2:6]),
			Inventory: body[6],
			Capacity:  body[7],
			ProductID: binary.BigEndian.Uint16(body[8:10]),
			Status:    body[10],
		}, nil

	case OpSelectionCheckResp:
		if len(body) < 1 {
			return nil, ErrMalformedRecord
		}
		return SelectionCheck{Code: body[0]}, nil

	case OpDispenseStatus:
		if len(body) < 1 {
			return nil, ErrMalformedRecord
		}
		return DispenseStatus{Code: body[0]}, nil

	case OpMachineStatus:
		if len(body) < machineStatusLen {
			return nil, ErrMalformedRecord
		}
		return MachineStatus{
			BillError:       body[0],
			CoinError:       body[1],
			MotorError:      body[2],
			TempError:       body[3],
			Temperature:     int8(body[4]),
			DoorOpen:        body[5] != 0x00,
			BillChangeTotal: binary.BigEndian.Uint32(body[6:10]),
			CoinChangeTotal: binary.BigEndian.Uint32(body[10:14]),
			MachineID:       strings.TrimRight(string(body[14:24]), "\x00 "),
		}, nil

	case OpGenericReturn:
		return decodeGenericReturn(body)

	default:
		return UnknownRecord{Opcode: opcode, Body: body}, nil
	}
}

func decodeGenericReturn(body []byte) (Record, error) {
	if len(body) < 2 {
		return nil, ErrMalformedRecord
	}
	r := GenericReturn{SubCommand: body[0], OpType: body[1]}
	data := body[2:]

	switch {
	// 设置类确认：status(1)，0x00=成功
	case r.SubCommand >= OpSetPrice && r.SubCommand <= OpSetProductID:
		status := byte(0xFF)
		if len(data) > 0 {
			status = data[0]
		}
		msg := "set failed"
		if status == 0x00 {
			msg = "set success"
		}
		r.Set = &SetResult{Success: status == 0x00, Message: msg}

	// 货道配置查询应答：price(4)+inv(1)+cap(1)+pid(2)+mode(1)+drop(1)+jam(1)+turn(1)
	case r.SubCommand == OpQuerySlotCfg && r.OpType == 0x00:
		if len(data) < 12 {
			return nil, ErrMalformedRecord
		}
		r.SlotCfg = &SlotConfig{
			Price:     binary.BigEndian.Uint32(data[0:4]),
			Inventory: data[4],
			Capacity:  data[5],
			ProductID: binary.BigEndian.Uint16(data[6:8]),
			MotorMode: data[8],
		}

	// 销量查询应答：totalCount(4)+totalRevenue(4)
	case r.SubCommand == OpQuerySales && r.OpType == 0x00:
		if len(data) < 8 {
			return nil, ErrMalformedRecord
		}
		r.Sales = &SalesReport{
			TotalCount:   binary.BigEndian.Uint32(data[0:4]),
			TotalRevenue: binary.BigEndian.Uint32(data[4:8]),
		}
	}
	return r, nil
}
