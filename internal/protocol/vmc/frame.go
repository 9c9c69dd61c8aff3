package vmc

// Frame VMC V3.0 协议帧结构
// 格式：sync(2, FA FB) + opcode(1) + len(1) + [seq(1) + payload]（控制帧无seq） + checksum(1)
// checksum = 从sync开始到payload结束所有字节的异或
type Frame struct {
	Opcode  byte   // 命令码
	Payload []byte // len 字节的载荷（数据帧首字节为对端pack号）
}

// 控制命令码（无seq、无payload）
const (
	OpPoll byte = 0x41 // 设备轮询（设备主动下发，节奏由设备掌握）
	OpAck  byte = 0x42 // 传输层回执
)

// 下行业务命令码
const (
	OpCheckSelection byte = 0x01 // 货道可用性检查
	OpDispense       byte = 0x03 // 出货
	OpDriveDirect    byte = 0x06 // 电机直驱
	OpSetPrice       byte = 0x12 // 设置单价
	OpSetInventory   byte = 0x13 // 设置库存
	OpSetCapacity    byte = 0x14 // 设置容量
	OpSetProductID   byte = 0x15 // 设置商品ID
	OpInfoSync       byte = 0x31 // 触发整机信息同步（回报0x11）
	OpQuerySlotCfg   byte = 0x42 // 查询货道配置（注意与OpAck同值，见encoder）
	OpQuerySales     byte = 0x43 // 查询当日销量
	OpQueryStatus    byte = 0x51 // 查询整机状态（回报0x52）
	OpDeductMoney    byte = 0x64 // 扣款（金额0=撤销交易）
)

// 上行数据命令码
const (
	OpSelectionCheckResp byte = 0x02 // 货道检查结果
	OpDispenseStatus     byte = 0x04 // 出货/电机状态（一次交易可多次上报）
	OpProductReport      byte = 0x11 // 货道信息上报（整行覆盖）
	OpMoneyNotice        byte = 0x21 // 投币/收款通知（异步硬件事件）
	OpMachineStatus      byte = 0x52 // 整机状态上报
	OpGenericReturn      byte = 0x71 // 通用复用应答（内嵌子命令码）
)

var syncMarker = []byte{0xFA, 0xFB}

// IsControl 判断是否为控制帧（POLL/ACK 无seq无payload）
// 仅对入站方向有意义：下行的0x42是查询货道配置，由编码器单独区分
func (f *Frame) IsControl() bool {
	return f.Opcode == OpPoll || f.Opcode == OpAck
}

// Body 返回去掉对端pack号后的数据体
// 数据帧payload首字节为设备侧pack号，业务解析只关心其后的内容
func (f *Frame) Body() []byte {
	if len(f.Payload) == 0 {
		return nil
	}
	return f.Payload[1:]
}
