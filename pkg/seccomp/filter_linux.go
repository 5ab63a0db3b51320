package seccomp

import (
	"syscall"

	"golang.org/x/net/bpf"
)

// Filter 是 BPF (Berkeley Packet Filter) 格式的 seccomp 过滤器
// 每个 SockFilter 结构体表示一条 BPF 指令
type Filter []syscall.SockFilter

// SockFprog 将 Filter 转换为内核可以理解的 SockFprog 格式
// 在调用 prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, prog) 时使用
// 注意：Filter 指针必须指向连续的内存区域，
// 因此需要获取切片底层数组的指针
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}

// exportBPF 将汇编好的 BPF 指令序列转换为内核使用的 SockFilter 格式
func exportBPF(filter []bpf.Instruction) (Filter, error) {
	raw, err := bpf.Assemble(filter)
	if err != nil {
		return nil, err
	}
	ret := make(Filter, 0, len(raw))
	for _, instruction := range raw {
		ret = append(ret, syscall.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return ret, nil
}
