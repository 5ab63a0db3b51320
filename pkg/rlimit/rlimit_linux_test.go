package rlimit

import (
	"testing"

	"golang.org/x/sys/unix"
)

// TestPrepareRLimit 测试限制字段到 setrlimit 列表的展开
func TestPrepareRLimit(t *testing.T) {
	tests := []struct {
		name    string
		limits  RLimits
		wantLen int
	}{
		{"empty", RLimits{}, 0},
		{"cpu only", RLimits{CPU: 1}, 1},
		{"all", RLimits{CPU: 1, FileSize: 1 << 20, AddressSpace: 1 << 30, OpenFile: 64, DisableCore: true}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.limits.PrepareRLimit()
			if len(got) != tt.wantLen {
				t.Errorf("len(PrepareRLimit()) = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

// TestPrepareRLimitValues 测试展开后的具体限制值
func TestPrepareRLimitValues(t *testing.T) {
	limits := RLimits{CPU: 2, OpenFile: 64, DisableCore: true}
	prepared := limits.PrepareRLimit()
	if len(prepared) != 3 {
		t.Fatalf("len = %d, want 3", len(prepared))
	}
	if prepared[0].Res != unix.RLIMIT_CPU || prepared[0].Rlim.Cur != 2 {
		t.Errorf("cpu limit = %+v", prepared[0])
	}
	if prepared[1].Res != unix.RLIMIT_NOFILE || prepared[1].Rlim.Cur != 64 {
		t.Errorf("nofile limit = %+v", prepared[1])
	}
	if prepared[2].Res != unix.RLIMIT_CORE || prepared[2].Rlim.Max != 0 {
		t.Errorf("core limit = %+v", prepared[2])
	}
}

// TestString 测试字符串表示
func TestString(t *testing.T) {
	limits := RLimits{CPU: 1, OpenFile: 64}
	want := "RLimits{CPU=1, OpenFile=64}"
	if got := limits.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	l := RLimit{Res: unix.RLIMIT_CPU, Rlim: unix.Rlimit{Cur: 1, Max: 2}}
	if got := l.String(); got != "CPU[1 s:2 s]" {
		t.Errorf("RLimit.String() = %q", got)
	}
}
