package vmc

import (
	"bytes"
	"testing"
)

func TestBuild_DispenseVector(t *testing.T) {
	// 出货指令0x03、货道10、pack号1的标准向量
	got := Build(OpDispense, 1, []byte{0x00, 0x0A})
	want := []byte{0xFA, 0xFB, 0x03, 0x03, 0x01, 0x00, 0x0A, 0x0A}
	if !bytes.Equal(got, want) {
		t.Fatalf("Build() = % 02X, want % 02X", got, want)
	}
}

func TestBuild_SeqAlwaysPresent(t *testing.T) {
	// 业务帧即使载荷为空也必须带pack号，len=1
	got := Build(OpInfoSync, 7, nil)
	if got[3] != 0x01 {
		t.Fatalf("length = 0x%02X, want 0x01", got[3])
	}
	if got[4] != 0x07 {
		t.Fatalf("seq = 0x%02X, want 0x07", got[4])
	}
	if err := VerifyChecksum(got); err != nil {
		t.Fatalf("checksum invalid: %v", err)
	}
}

func TestBuild_QuerySlotCfgCarriesSeq(t *testing.T) {
	// 0x42与ACK同值：业务路径构造必须照常带pack号，不能被当成控制帧
	got := Build(OpQuerySlotCfg, 3, []byte{0x00, 0x0A})
	if got[2] != 0x42 {
		t.Fatalf("opcode = 0x%02X, want 0x42", got[2])
	}
	if got[3] != 0x03 {
		t.Fatalf("length = 0x%02X, want 0x03 (seq+payload)", got[3])
	}
	if got[4] != 0x03 {
		t.Fatalf("seq = 0x%02X, want 0x03", got[4])
	}
}

func TestBuildControlFrames(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		op   byte
	}{
		{name: "POLL", got: BuildPoll(), op: OpPoll},
		{name: "ACK", got: BuildAck(), op: OpAck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != 5 {
				t.Fatalf("control frame len = %d, want 5", len(tt.got))
			}
			if tt.got[2] != tt.op || tt.got[3] != 0x00 {
				t.Fatalf("unexpected frame: % 02X", tt.got)
			}
			if err := VerifyChecksum(tt.got); err != nil {
				t.Fatalf("checksum invalid: %v", err)
			}
		})
	}
}
