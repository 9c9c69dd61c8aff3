package vmc

import "encoding/binary"

// 下行命令载荷构造（不含opcode与seq，编码由 Build 完成）
// 多字节字段一律大端

// DispensePayload 出货：selection(2)
func DispensePayload(selection uint16) []byte {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, selection)
	return p
}

// DriveDirectPayload 电机直驱：dropSensor(1)+elevator(1)+selection(2)+cart(1)
func DriveDirectPayload(selection uint16) []byte {
	p := make([]byte, 5)
	p[0] = 0x01 // 掉货检测开
	p[1] = 0x01 // 升降台开
	binary.BigEndian.PutUint16(p[2:], selection)
	p[4] = 0x00 // 无购物车
	return p
}

// DeductPayload 扣款：amount(4)，金额为最小货币单位
func DeductPayload(amount uint32) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, amount)
	return p
}

// CancelPayload 撤销交易 = 扣款金额0
func CancelPayload() []byte { return DeductPayload(0) }

// InfoSyncPayload 信息同步触发，空载荷
func InfoSyncPayload() []byte { return nil }

// QueryStatusPayload 整机状态查询，空载荷
func QueryStatusPayload() []byte { return nil }

// SetPricePayload 设置单价：selection(2)+price(4)
func SetPricePayload(selection uint16, price uint32) []byte {
	p := make([]byte, 6)
	binary.BigEndian.PutUint16(p, selection)
	binary.BigEndian.PutUint32(p[2:], price)
	return p
}

// SetInventoryPayload 设置库存：selection(2)+inventory(1)
func SetInventoryPayload(selection uint16, inventory uint8) []byte {
	p := make([]byte, 3)
	binary.BigEndian.PutUint16(p, selection)
	p[2] = inventory
	return p
}

// SetCapacityPayload 设置容量：selection(2)+capacity(1)
func SetCapacityPayload(selection uint16, capacity uint8) []byte {
	p := make([]byte, 3)
	binary.BigEndian.PutUint16(p, selection)
	p[2] = capacity
	return p
}

// SetProductIDPayload 设置商品ID：selection(2)+productID(2)
func SetProductIDPayload(selection uint16, productID uint16) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint16(p, selection)
	binary.BigEndian.PutUint16(p[2:], productID)
	return p
}

// QuerySlotCfgPayload 查询货道配置：selection(2)
func QuerySlotCfgPayload(selection uint16) []byte {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, selection)
	return p
}

// QuerySalesPayload 查询当日销量：date(4)，整数YYYYMMDD
func QuerySalesPayload(yyyymmdd uint32) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, yyyymmdd)
	return p
}
