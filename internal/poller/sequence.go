package poller

// packCounter 进程级pack号计数器，取值域 [1,255]
// 仅在当前在途指令被设备确认接收（ACK）后推进；
// 重试复用同一pack号，设备以此识别重传。255的下一个是1，永远不是0
type packCounter struct {
	n uint8
}

func newPackCounter() packCounter { return packCounter{n: 1} }

// Current 当前pack号
func (c *packCounter) Current() uint8 { return c.n }

// Advance 推进：n → (n % 255) + 1
func (c *packCounter) Advance() { c.n = c.n%255 + 1 }
