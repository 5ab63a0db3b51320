package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Handle 表示一个已经建立的内核挂载点
// Handle 独占该挂载点的所有权：释放 Handle 即执行卸载
// 成功释放后重复调用是无害的空操作，失败则可以再次尝试
type Handle struct {
	target string // 解析后的完整挂载点路径
	done   bool   // 是否已经成功释放
}

// Target 返回该挂载点解析后的完整路径
func (h *Handle) Target() string {
	return h.target
}

// Unmount 释放挂载点
// 使用 MNT_DETACH 执行惰性卸载：即使挂载点仍然忙碌
// （例如仍被一个已不可达的 chroot 引用），也会立即从
// 命名空间中分离，实际资源待不再被引用时由内核回收
// 只有卸载成功才标记为已释放：失败时挂载点仍然存活，
// Handle 保持有效，再次调用会重新尝试卸载
func (h *Handle) Unmount() error {
	if h.done {
		return nil
	}
	if err := unix.Unmount(h.target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("umount %s: %w", h.target, err)
	}
	h.done = true
	return nil
}

// Mount 将 source 按照本挂载点的配置挂载到 root 下的目标路径
// 挂载前会自动创建目标路径上缺失的目录（或文件，见下）
// 成功时返回独占该挂载点的 Handle
//
// 对于只读绑定挂载，需要带 MS_REMOUNT 重新挂载一次
// 因为第一次挂载时内核会忽略 MS_RDONLY 标志
func (m *Mount) Mount(source, root string) (*Handle, error) {
	target := m.Path(root)
	if err := ensureTargetExists(source, target, m.IsBindMount()); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", target, err)
	}
	if err := unix.Mount(source, target, m.FsType, m.Flags, m.Data); err != nil {
		return nil, fmt.Errorf("mount %s: %w", target, err)
	}
	const bindRo = unix.MS_BIND | unix.MS_RDONLY
	if m.Flags&bindRo == bindRo {
		if err := unix.Mount("", target, m.FsType, m.Flags|unix.MS_REMOUNT, m.Data); err != nil {
			return nil, fmt.Errorf("remount %s: %w", target, err)
		}
	}
	return &Handle{target: target}, nil
}

// Umount 对 root 下的目标路径执行一次普通卸载
// 仅在不经由 Handle 的裸卸载场景下使用
func (m *Mount) Umount(root string) error {
	target := m.Path(root)
	if err := unix.Unmount(target, 0); err != nil {
		return fmt.Errorf("umount %s: %w", target, err)
	}
	return nil
}

// ensureTargetExists 确保挂载目标存在
// 绑定挂载的源如果是文件，则创建目标文件
// 其余情况递归创建目标目录
func ensureTargetExists(source, target string, bind bool) error {
	isFile := false
	if bind {
		if fi, err := os.Stat(source); err == nil {
			isFile = !fi.IsDir()
		}
	}
	dir := target
	if isFile {
		dir = filepath.Dir(target)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if isFile {
		if err := unix.Mknod(target, 0755, 0); err != nil {
			// 双重检查文件是否已存在
			// 避免并发创建的问题
			f, err1 := os.Lstat(target)
			if err1 == nil && f.Mode().IsRegular() {
				return nil
			}
			return err
		}
	}
	return nil
}
