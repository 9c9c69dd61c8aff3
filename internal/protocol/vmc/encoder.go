package vmc

// Build 构造下行业务帧
// 格式：sync(2) + opcode(1) + len(1) + seq(1) + payload + checksum(1)
// len = 1 + len(payload)，seq为本端pack号（1..255）
// 注意：OpQuerySlotCfg(0x42) 与 OpAck 同值，业务帧一律走本函数并携带seq；
// 控制帧只能由 BuildPoll/BuildAck 构造，绝不按命令码值判断
func Build(opcode byte, seq byte, payload []byte) []byte {
	final := make([]byte, 0, 1+len(payload))
	final = append(final, seq)
	final = append(final, payload...)

	buf := make([]byte, 0, 2+2+len(final)+1)
	buf = append(buf, syncMarker...)
	buf = append(buf, opcode, byte(len(final)))
	buf = append(buf, final...)
	buf = append(buf, Checksum(buf))
	return buf
}

// buildControl 构造无seq无payload的控制帧
func buildControl(opcode byte) []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, syncMarker...)
	buf = append(buf, opcode, 0x00)
	buf = append(buf, Checksum(buf))
	return buf
}

// BuildPoll 构造轮询帧（正常由设备下发，这里主要用于测试对端）
func BuildPoll() []byte { return buildControl(OpPoll) }

// BuildAck 构造传输层回执帧（空闲心跳 / 数据帧回执）
func BuildAck() []byte { return buildControl(OpAck) }
