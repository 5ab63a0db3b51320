// Package rlimit 提供了对监狱内命令的资源限制功能
// 限制通过 setrlimit 施加在当前进程上，随 exec 继承给监狱内的命令
package rlimit

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// RLimits 描述施加到监狱内命令的资源限制
// 为零的字段表示不限制
type RLimits struct {
	CPU          uint64 // CPU 时间限制（秒）
	FileSize     uint64 // 文件大小限制（字节）
	AddressSpace uint64 // 地址空间限制（字节）
	OpenFile     uint64 // 打开文件数量限制
	DisableCore  bool   // 是否禁用 core dump
}

// RLimit 是 Linux setrlimit 定义的单项资源限制
type RLimit struct {
	// Res 是资源类型（例如 unix.RLIMIT_CPU）
	Res int
	// Rlim 是应用到该资源的限制值
	Rlim unix.Rlimit
}

// Apply 通过 setrlimit 将限制施加到当前进程
func (r RLimit) Apply() error {
	if err := unix.Setrlimit(r.Res, &r.Rlim); err != nil {
		return fmt.Errorf("rlimit: set %s: %w", r.name(), err)
	}
	return nil
}

// PrepareRLimit 将非零的限制字段展开为 setrlimit 可用的限制列表
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	if r.CPU > 0 {
		ret = append(ret, RLimit{
			Res:  unix.RLIMIT_CPU,
			Rlim: unix.Rlimit{Cur: r.CPU, Max: r.CPU},
		})
	}
	if r.FileSize > 0 {
		ret = append(ret, RLimit{
			Res:  unix.RLIMIT_FSIZE,
			Rlim: unix.Rlimit{Cur: r.FileSize, Max: r.FileSize},
		})
	}
	if r.AddressSpace > 0 {
		ret = append(ret, RLimit{
			Res:  unix.RLIMIT_AS,
			Rlim: unix.Rlimit{Cur: r.AddressSpace, Max: r.AddressSpace},
		})
	}
	if r.OpenFile > 0 {
		ret = append(ret, RLimit{
			Res:  unix.RLIMIT_NOFILE,
			Rlim: unix.Rlimit{Cur: r.OpenFile, Max: r.OpenFile},
		})
	}
	if r.DisableCore {
		ret = append(ret, RLimit{
			Res:  unix.RLIMIT_CORE,
			Rlim: unix.Rlimit{Cur: 0, Max: 0},
		})
	}
	return ret
}

// Apply 依次施加全部限制
func (r *RLimits) Apply() error {
	for _, l := range r.PrepareRLimit() {
		if err := l.Apply(); err != nil {
			return err
		}
	}
	return nil
}

// name 返回资源类型的名称
func (r RLimit) name() string {
	switch r.Res {
	case unix.RLIMIT_CPU:
		return "CPU"
	case unix.RLIMIT_FSIZE:
		return "FileSize"
	case unix.RLIMIT_AS:
		return "AddressSpace"
	case unix.RLIMIT_NOFILE:
		return "OpenFile"
	case unix.RLIMIT_CORE:
		return "Core"
	default:
		return fmt.Sprintf("Resource(%d)", r.Res)
	}
}

// String 返回单项限制的字符串表示
func (r RLimit) String() string {
	if r.Res == unix.RLIMIT_CPU {
		return fmt.Sprintf("CPU[%d s:%d s]", r.Rlim.Cur, r.Rlim.Max)
	}
	return fmt.Sprintf("%s[%d]", r.name(), r.Rlim.Cur)
}

// String 返回全部限制的字符串表示
func (r *RLimits) String() string {
	var s []string
	if r.CPU > 0 {
		s = append(s, fmt.Sprintf("CPU=%d", r.CPU))
	}
	if r.FileSize > 0 {
		s = append(s, fmt.Sprintf("FileSize=%d", r.FileSize))
	}
	if r.AddressSpace > 0 {
		s = append(s, fmt.Sprintf("AddressSpace=%d", r.AddressSpace))
	}
	if r.OpenFile > 0 {
		s = append(s, fmt.Sprintf("OpenFile=%d", r.OpenFile))
	}
	if r.DisableCore {
		s = append(s, "DisableCore=true")
	}
	return fmt.Sprintf("RLimits{%s}", strings.Join(s, ", "))
}
