package seriallink

import (
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// Config 串口链路配置
type Config struct {
	Address     string        // 设备节点，如 /dev/ttyS1
	BaudRate    int           // 波特率（VMC固定57600）
	DataBits    int           // 数据位
	StopBits    int           // 停止位
	Parity      string        // 校验位 N/E/O
	ReadTimeout time.Duration // 单字节读超时，轮询循环唯一的阻塞点
}

// Opener 链路打开器抽象，测试注入内存管道
type Opener interface {
	Open() (io.ReadWriteCloser, error)
}

// Serial 基于 goburrow/serial 的半双工串口链路
type Serial struct {
	cfg Config
}

// New 创建串口链路打开器
func New(cfg Config) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 57600
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	return &Serial{cfg: cfg}
}

// Open 打开串口；失败由调用方按固定间隔无限重试
func (s *Serial) Open() (io.ReadWriteCloser, error) {
	return serial.Open(&serial.Config{
		Address:  s.cfg.Address,
		BaudRate: s.cfg.BaudRate,
		DataBits: s.cfg.DataBits,
		StopBits: s.cfg.StopBits,
		Parity:   s.cfg.Parity,
		Timeout:  s.cfg.ReadTimeout,
	})
}

// IsTimeout 判断是否为读超时（安静线路），区别于链路断开
func IsTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout)
}
