package vmc

import "errors"

var (
	// ErrChecksumMismatch checksum校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Checksum 计算VMC协议校验和
// 算法：对所有字节做异或（覆盖范围从sync开始，不含校验字节本身）
func Checksum(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return x
}

// VerifyChecksum 验证校验和
// dataWithChecksum: 包含校验和的完整帧（sync到checksum）
func VerifyChecksum(dataWithChecksum []byte) error {
	if len(dataWithChecksum) < 1 {
		return errors.New("data too short for checksum verification")
	}
	pos := len(dataWithChecksum) - 1
	if dataWithChecksum[pos] != Checksum(dataWithChecksum[:pos]) {
		return ErrChecksumMismatch
	}
	return nil
}
