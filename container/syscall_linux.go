package container

import "golang.org/x/sys/unix"

// Syscalls 定义了容器状态切换所依赖的 POSIX 系统调用集合
// 单独抽象出来是为了在没有 root 权限的环境下测试状态机
type Syscalls interface {
	// Chroot 将进程的根目录切换到 path
	Chroot(path string) error
	// Chdir 将进程的工作目录切换到 path
	Chdir(path string) error
	// Fchdir 将进程的工作目录切换到文件描述符 fd 指向的目录
	Fchdir(fd int) error
}

// realSyscalls 是 Syscalls 的真实实现，直接调用内核
type realSyscalls struct{}

func (realSyscalls) Chroot(path string) error {
	return unix.Chroot(path)
}

func (realSyscalls) Chdir(path string) error {
	return unix.Chdir(path)
}

func (realSyscalls) Fchdir(fd int) error {
	return unix.Fchdir(fd)
}
