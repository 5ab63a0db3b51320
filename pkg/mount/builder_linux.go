package mount

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	// bind 定义了绑定挂载的默认标志位组合：
	// - MS_BIND: 创建绑定挂载
	// - MS_NOSUID: 禁用 SUID 和 SGID 位
	// - MS_PRIVATE: 确保挂载点是私有的，不会传播到其他命名空间
	// - MS_REC: 递归应用到所有子挂载点
	bind = unix.MS_BIND | unix.MS_NOSUID | unix.MS_PRIVATE | unix.MS_REC

	// mFlag 定义了通用挂载的默认标志位组合：
	// - MS_NOSUID: 禁用 SUID 和 SGID 位
	// - MS_NOATIME: 不更新文件访问时间，提高性能
	// - MS_NODEV: 禁止访问设备文件
	mFlag = unix.MS_NOSUID | unix.MS_NOATIME | unix.MS_NODEV
)

// NewDefaultBuilder 创建一个默认的构建器，预配置了最小根文件系统所需的基本挂载点：
// - /usr: 系统程序和库文件
// - /lib 和 /lib64: 系统库文件
// - /bin: 基本命令
// 所有挂载点默认以只读方式挂载
func NewDefaultBuilder() *Builder {
	return NewBuilder().
		WithBind("/usr", "usr", true).
		WithBind("/lib", "lib", true).
		WithBind("/lib64", "lib64", true).
		WithBind("/bin", "bin", true)
}

// WithBind 添加一个绑定挂载
// 参数：
// - source: 源路径（宿主机上的路径）
// - target: 目标路径（容器内的路径）
// - readonly: 是否以只读方式挂载
// 返回构建器自身以支持链式调用
func (b *Builder) WithBind(source, target string, readonly bool) *Builder {
	var flags uintptr = bind
	if readonly {
		flags |= unix.MS_RDONLY
	}
	return b.WithMount(source, Mount{
		Target: target,
		Flags:  flags,
	})
}

// WithTmpfs 添加一个 tmpfs 临时文件系统挂载
// 参数：
// - target: 挂载点路径
// - data: 挂载选项（如 "size=64m,mode=755"）
// 返回构建器自身以支持链式调用
func (b *Builder) WithTmpfs(target, data string) *Builder {
	return b.WithMount("tmpfs", Mount{
		Target: target,
		FsType: "tmpfs",
		Flags:  mFlag,
		Data:   data,
	})
}

// WithProc 添加一个 proc 文件系统挂载，挂载到容器内的 proc 目录
// 返回构建器自身以支持链式调用
func (b *Builder) WithProc() *Builder {
	return b.WithMount("/proc", Mount{
		Target: "proc",
		FsType: "proc",
	})
}

// WithSysfs 添加一个 sysfs 文件系统挂载，挂载到容器内的 sys 目录
// 返回构建器自身以支持链式调用
func (b *Builder) WithSysfs() *Builder {
	return b.WithMount("/sys", Mount{
		Target: "sys",
		FsType: "sysfs",
	})
}

// FilterNotExist 从构建器中移除源路径不存在的绑定挂载
// 这在处理可选的系统目录时很有用，比如某些系统没有 /lib64
// 返回构建器自身以支持链式调用
func (b *Builder) FilterNotExist() *Builder {
	rt := b.entries[:0]
	for _, e := range b.entries {
		if e.mount.IsBindMount() {
			if _, err := os.Stat(e.source); os.IsNotExist(err) {
				continue
			}
		}
		rt = append(rt, e)
	}
	b.entries = rt
	return b
}
