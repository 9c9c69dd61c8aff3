package vmc

import "io"

// Decoder 面向半双工串口的流式解码器
// 逐字节扫描sync标记（FA FB），任意脏字节只会被跳过，不会造成永久失步。
// 半包（串口读超时）与校验失败一律返回 (nil, nil)：调用方视为本轮无帧；
// 底层I/O错误原样上抛，由上层区分链路断开与静默线路。
type Decoder struct {
	r io.Reader
	b [1]byte
}

// NewDecoder 创建解码器
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Reset 更换底层Reader并丢弃所有缓冲状态（链路重连后调用）
func (d *Decoder) Reset(r io.Reader) { d.r = r }

func (d *Decoder) readByte() (byte, error) {
	if _, err := io.ReadFull(d.r, d.b[:]); err != nil {
		return 0, err
	}
	return d.b[0], nil
}

// Next 读取下一帧
// 返回 (nil, nil) 表示本轮没有完整有效帧（超时半包、校验失败）；
// err != nil 仅表示底层读取失败。
func (d *Decoder) Next() (*Frame, error) {
	// 1) 同步：逐字节找 FA，紧跟的必须是 FB，否则从头再找
	for {
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if b != syncMarker[0] {
			continue
		}
		b, err = d.readByte()
		if err != nil {
			return nil, err
		}
		if b == syncMarker[1] {
			break
		}
	}

	// 2) 固定头：opcode + len
	opcode, err := d.readByte()
	if err != nil {
		return nil, err
	}
	length, err := d.readByte()
	if err != nil {
		return nil, err
	}

	// 3) 恰好 len 字节payload；半包按无帧处理（交回下一个轮询周期）
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(d.r, payload); err != nil {
			if err == io.ErrUnexpectedEOF {
				return nil, nil
			}
			return nil, err
		}
	}

	// 4) 校验字节
	sum, err := d.readByte()
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, 4+len(payload))
	raw = append(raw, syncMarker...)
	raw = append(raw, opcode, length)
	raw = append(raw, payload...)
	if Checksum(raw) != sum {
		// 整帧丢弃，无任何副作用
		return nil, nil
	}
	return &Frame{Opcode: opcode, Payload: payload}, nil
}
