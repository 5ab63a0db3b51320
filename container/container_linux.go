package container

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jail/pkg/mount"
)

const (
	// mountAttempts 是虚拟文件系统挂载的最大尝试次数
	// 上一个监狱的卸载可能尚未完成，导致短暂的 EBUSY
	mountAttempts = 3
	// mountRetryDelay 是两次挂载尝试之间的等待时间
	mountRetryDelay = 100 * time.Millisecond
)

// Mounter 定义了容器对挂载表的两个生命周期操作
// 与 Syscalls 一样单独抽象出来，让重试和回退逻辑
// 可以在不触碰内核的情况下测试
// *mount.Table 是它的真实实现
type Mounter interface {
	// Mount 按顺序建立全部挂载点
	Mount(root string) error
	// Umount 按逆序释放全部挂载点
	Umount() error
}

// Container 是一个基于 chroot 的最小监狱
// 持有一张挂载表、两个状态标志（mounted、chrooted），
// 以及进入 chroot 前保存的工作目录和真实根目录的文件句柄
//
// chrooted 为真时 mounted 必然为真：进入监狱前虚拟文件系统
// 必须已经就绪，Chroot 会在未挂载时自动先执行 Mount
type Container struct {
	root    string       // 监狱根目录的绝对路径
	table   *mount.Table // 监狱的挂载表
	pwd     *os.File     // 进入 chroot 前的工作目录
	sysroot *os.File     // 真实文件系统的根目录

	mounted  bool // 挂载表是否已经应用
	chrooted bool // 进程是否位于监狱内部
	closed   bool // Close 是否已经执行

	sys     Syscalls
	mounter Mounter
	logger  *slog.Logger
}

// New 创建一个以 root 为根目录的容器
// 打开并保留当前工作目录和真实根目录的句柄供退出时恢复，
// 同时向挂载表填充最小虚拟文件系统集合：
// proc、sysfs，以及 /dev 和 /dev/pts 的绑定挂载
// 此时尚未执行任何挂载
func New(root string) (*Container, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("container: resolve %s: %w", root, err)
	}
	pwd, err := os.Open(".")
	if err != nil {
		return nil, fmt.Errorf("container: open cwd: %w", err)
	}
	sysroot, err := os.Open("/")
	if err != nil {
		pwd.Close()
		return nil, fmt.Errorf("container: open /: %w", err)
	}

	table := mount.NewTable()
	c := &Container{
		root:    abs,
		table:   table,
		pwd:     pwd,
		sysroot: sysroot,
		sys:     realSyscalls{},
		mounter: table,
		logger:  slog.Default(),
	}
	c.setupMinimalMounts()
	return c, nil
}

// SetLogger 设置容器使用的日志记录器
// 拆除路径上的失败没有错误通道，只能通过日志暴露
func (c *Container) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Root 返回监狱根目录的绝对路径
func (c *Container) Root() string {
	return c.root
}

// Mounted 返回挂载表是否已经应用
func (c *Container) Mounted() bool {
	return c.mounted
}

// Chrooted 返回进程是否位于监狱内部
func (c *Container) Chrooted() bool {
	return c.chrooted
}

// AddMount 向挂载表中添加一个挂载点
// 挂载表在 Mount 之前可以任意修改
// Mount 之后添加的条目要等到下一次 Mount 才会生效
func (c *Container) AddMount(source string, m mount.Mount) {
	c.table.Add(source, m)
}

// BindMount 添加一个目录或文件的绑定挂载
func (c *Container) BindMount(source, target string) {
	c.table.Add(source, mount.Mount{
		Target: target,
		Flags:  unix.MS_BIND,
	})
}

// HostBindMount 将真实文件系统的根目录绑定挂载到
// 监狱内的 run/host，方便监狱内访问宿主机文件
func (c *Container) HostBindMount() *Container {
	c.BindMount("/", "run/host")
	return c
}

// SetTable 整体替换容器的挂载表内容
// 对已经建立的挂载点没有影响
func (c *Container) SetTable(entries map[string]mount.Mount) {
	c.table.SetTable(entries)
}

// Mount 应用挂载表中的全部挂载点，成功后 mounted 置为真
// 虚拟文件系统偶尔因上一个监狱的卸载尚未完成而返回 EBUSY，
// 这种情况下回退本次已建立的挂载点并在短暂等待后重试，
// 重试次数用尽即视为安装失败
func (c *Container) Mount() error {
	var err error
	for attempt := 1; attempt <= mountAttempts; attempt++ {
		err = c.mounter.Mount(c.root)
		if err == nil {
			c.mounted = true
			c.logger.Debug("mount table applied", "root", c.root, "mounts", c.table.Live())
			return nil
		}
		if !errors.Is(err, unix.EBUSY) {
			break
		}
		c.logger.Debug("mount busy, retrying", "root", c.root, "attempt", attempt, "error", err)
		if uerr := c.mounter.Umount(); uerr != nil {
			c.logger.Warn("rollback before retry failed", "root", c.root, "error", uerr)
			break
		}
		time.Sleep(mountRetryDelay)
	}
	return fmt.Errorf("container: mount %s: %w", c.root, err)
}

// Chroot 将进程的根目录切换到监狱根目录，并把工作目录
// 移动到新根目录下的 /
// 未挂载时自动先执行 Mount；已经位于监狱内部时为空操作
func (c *Container) Chroot() error {
	if c.chrooted {
		return nil
	}
	if !c.mounted {
		if err := c.Mount(); err != nil {
			return err
		}
	}
	if err := c.sys.Chroot(c.root); err != nil {
		return fmt.Errorf("container: chroot %s: %w", c.root, err)
	}
	// chroot 已经生效，先置位再切换工作目录，
	// 这样即使 chdir 失败，拆除路径也会执行 ExitChroot
	c.chrooted = true
	if err := c.sys.Chdir("/"); err != nil {
		return fmt.Errorf("container: chdir /: %w", err)
	}
	c.logger.Debug("entered chroot", "root", c.root)
	return nil
}

// ExitChroot 将进程恢复到真实文件系统和原来的工作目录
// 通过保存的文件描述符完成：先 fchdir 到真实根目录，
// 再 chroot 到当前目录，最后 fchdir 回原工作目录
// 不经过路径查找，因此原路径即使已被卸载或改名也能正确返回
func (c *Container) ExitChroot() error {
	if !c.chrooted {
		return nil
	}
	if err := c.sys.Fchdir(int(c.sysroot.Fd())); err != nil {
		return fmt.Errorf("container: fchdir sysroot: %w", err)
	}
	if err := c.sys.Chroot("."); err != nil {
		return fmt.Errorf("container: chroot .: %w", err)
	}
	c.chrooted = false
	if err := c.sys.Fchdir(int(c.pwd.Fd())); err != nil {
		return fmt.Errorf("container: fchdir pwd: %w", err)
	}
	c.logger.Debug("left chroot", "root", c.root)
	return nil
}

// Umount 按挂载的逆序拆除监狱内的全部挂载点
// 全部成功后 mounted 置为假；失败时保持为真，
// 剩余的挂载点留待下一次 Umount 或 Close 处理
func (c *Container) Umount() error {
	if err := c.mounter.Umount(); err != nil {
		return fmt.Errorf("container: umount: %w", err)
	}
	c.mounted = false
	return nil
}

// Run 在监狱内部执行 f
// 自动补齐 Mount 和 Chroot，f 返回后无论成败都依次尝试
// ExitChroot 和 Umount；f 发生 panic 时拆除同样会执行
// 返回值优先级：安装失败 > f 的错误 > 拆除失败，
// 拆除失败不会掩盖 f 本身的错误
func (c *Container) Run(f func() error) (err error) {
	if !c.mounted {
		if err := c.Mount(); err != nil {
			return err
		}
	}
	if !c.chrooted {
		if err := c.Chroot(); err != nil {
			return err
		}
	}
	defer func() {
		exitErr := c.ExitChroot()
		umountErr := c.Umount()
		if err == nil {
			if exitErr != nil {
				err = exitErr
			} else {
				err = umountErr
			}
			return
		}
		if exitErr != nil {
			c.logger.Warn("exit chroot after failed run", "root", c.root, "error", exitErr)
		}
		if umountErr != nil {
			c.logger.Warn("umount after failed run", "root", c.root, "error", umountErr)
		}
	}()
	return f()
}

// Close 强制回退容器持有的全部内核状态并释放文件句柄
// 仍在监狱内部时退出 chroot，挂载表仍然生效时执行卸载
// Close 是幂等的，重复调用为空操作
// 拆除失败无法向调用方传播，但会记入日志：
// 泄漏的挂载点是影响整个系统的资源泄漏，不能无声地忽略
// 典型用法是创建容器后立即 defer Close
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var first error
	if c.chrooted {
		if err := c.ExitChroot(); err != nil {
			c.logger.Warn("exit chroot during close failed", "root", c.root, "error", err)
			first = err
		}
	}
	if c.mounted {
		if err := c.Umount(); err != nil {
			c.logger.Warn("umount during close failed", "root", c.root, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	c.pwd.Close()
	c.sysroot.Close()
	return first
}

// setupMinimalMounts 填充最小虚拟文件系统集合
func (c *Container) setupMinimalMounts() {
	c.table.Add("/proc", mount.Mount{
		Target: "proc",
		FsType: "proc",
	})
	c.table.Add("/sys", mount.Mount{
		Target: "sys",
		FsType: "sysfs",
	})
	c.BindMount("/dev", "dev")
	c.BindMount("/dev/pts", "dev/pts")
}
