package container

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jail/pkg/mount"
)

// fakeSyscalls 记录系统调用序列并按配置注入错误
// 用于在没有 root 权限的环境下测试容器状态机
type fakeSyscalls struct {
	calls      []string
	chrootErrs map[string]error // 按路径注入 chroot 错误
	chdirErr   error
	fchdirErr  error
}

func (f *fakeSyscalls) Chroot(path string) error {
	f.calls = append(f.calls, "chroot "+path)
	if err, ok := f.chrootErrs[path]; ok {
		return err
	}
	return nil
}

func (f *fakeSyscalls) Chdir(path string) error {
	f.calls = append(f.calls, "chdir "+path)
	return f.chdirErr
}

func (f *fakeSyscalls) Fchdir(fd int) error {
	f.calls = append(f.calls, fmt.Sprintf("fchdir %d", fd))
	return f.fchdirErr
}

// fakeMounter 记录挂载表的生命周期调用并按脚本注入错误
type fakeMounter struct {
	mountErrs []error // 依次返回的 Mount 错误，耗尽后返回 nil
	mounts    int
	umounts   int
	umountErr error
}

func (f *fakeMounter) Mount(root string) error {
	f.mounts++
	if len(f.mountErrs) > 0 {
		err := f.mountErrs[0]
		f.mountErrs = f.mountErrs[1:]
		return err
	}
	return nil
}

func (f *fakeMounter) Umount() error {
	f.umounts++
	return f.umountErr
}

// busyErr 模拟挂载表返回的 EBUSY 错误链
func busyErr() error {
	return fmt.Errorf("mount table: /proc: %w", unix.EBUSY)
}

// newTestContainer 创建一个挂载表为空、系统调用被替换的容器
// 空挂载表让 Mount 不触碰内核，状态机逻辑完整保留
func newTestContainer(t *testing.T) (*Container, *fakeSyscalls) {
	t.Helper()
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetTable(nil)
	sys := &fakeSyscalls{}
	c.sys = sys
	return c, sys
}

func wantCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

// TestNewDefaults 测试容器创建后的初始状态
// 挂载表应当包含最小虚拟文件系统集合，两个状态标志为假
func TestNewDefaults(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Mounted() || c.Chrooted() {
		t.Errorf("fresh container: mounted=%v chrooted=%v", c.Mounted(), c.Chrooted())
	}
	if c.table.Len() != 4 {
		t.Errorf("default table size = %d, want 4 (proc, sys, dev, dev/pts)", c.table.Len())
	}
	if !filepath.IsAbs(c.Root()) {
		t.Errorf("root %q is not absolute", c.Root())
	}
}

// TestChrootAutoMount 测试未挂载时 Chroot 自动补齐 Mount
// 再次调用 Chroot 是幂等的空操作
func TestChrootAutoMount(t *testing.T) {
	c, sys := newTestContainer(t)

	if err := c.Chroot(); err != nil {
		t.Fatalf("Chroot: %v", err)
	}
	if !c.Mounted() {
		t.Error("Chroot did not mount first")
	}
	if !c.Chrooted() {
		t.Error("chrooted flag not set")
	}
	wantCalls(t, sys.calls, []string{"chroot " + c.Root(), "chdir /"})

	// 已在监狱内部时不应重复进入
	if err := c.Chroot(); err != nil {
		t.Fatalf("second Chroot: %v", err)
	}
	wantCalls(t, sys.calls, []string{"chroot " + c.Root(), "chdir /"})
}

// TestExitChroot 测试基于文件描述符的退出流程：
// fchdir 到真实根目录，chroot 到当前目录，fchdir 回原工作目录
func TestExitChroot(t *testing.T) {
	c, sys := newTestContainer(t)

	if err := c.Chroot(); err != nil {
		t.Fatalf("Chroot: %v", err)
	}
	sys.calls = nil
	if err := c.ExitChroot(); err != nil {
		t.Fatalf("ExitChroot: %v", err)
	}
	if c.Chrooted() {
		t.Error("chrooted flag still set")
	}
	wantCalls(t, sys.calls, []string{
		fmt.Sprintf("fchdir %d", int(c.sysroot.Fd())),
		"chroot .",
		fmt.Sprintf("fchdir %d", int(c.pwd.Fd())),
	})

	// 不在监狱内部时退出是空操作
	sys.calls = nil
	if err := c.ExitChroot(); err != nil {
		t.Fatalf("second ExitChroot: %v", err)
	}
	wantCalls(t, sys.calls, nil)
}

// TestChrootError 测试 chroot 系统调用失败时的状态
func TestChrootError(t *testing.T) {
	c, sys := newTestContainer(t)
	wantErr := errors.New("operation not permitted")
	sys.chrootErrs = map[string]error{c.Root(): wantErr}

	err := c.Chroot()
	if !errors.Is(err, wantErr) {
		t.Fatalf("Chroot error = %v, want %v", err, wantErr)
	}
	if c.Chrooted() {
		t.Error("chrooted flag set after failed chroot")
	}
	if !c.Mounted() {
		t.Error("implicit mount should have happened before the chroot syscall")
	}
}

// TestChdirErrorKeepsChrooted 测试 chroot 成功但 chdir 失败的情况
// 此时进程已经在新根目录内，chrooted 必须保持为真，
// 否则拆除路径不会执行 ExitChroot
func TestChdirErrorKeepsChrooted(t *testing.T) {
	c, sys := newTestContainer(t)
	sys.chdirErr = errors.New("no such file or directory")

	if err := c.Chroot(); err == nil {
		t.Fatal("Chroot succeeded despite chdir failure")
	}
	if !c.Chrooted() {
		t.Error("chrooted flag lost after chdir failure")
	}
}

// TestRun 测试 Run 的完整流程：挂载、进入、执行、退出、卸载
func TestRun(t *testing.T) {
	c, sys := newTestContainer(t)

	ran := false
	if err := c.Run(func() error {
		ran = true
		if !c.Chrooted() || !c.Mounted() {
			t.Error("body not running inside the jail")
		}
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ran {
		t.Fatal("body did not run")
	}
	if c.Mounted() || c.Chrooted() {
		t.Errorf("after Run: mounted=%v chrooted=%v", c.Mounted(), c.Chrooted())
	}
	wantCalls(t, sys.calls, []string{
		"chroot " + c.Root(),
		"chdir /",
		fmt.Sprintf("fchdir %d", int(c.sysroot.Fd())),
		"chroot .",
		fmt.Sprintf("fchdir %d", int(c.pwd.Fd())),
	})
}

// TestRunBodyError 测试 f 失败时拆除依然执行，且 f 的错误不被掩盖
func TestRunBodyError(t *testing.T) {
	c, sys := newTestContainer(t)
	bodyErr := errors.New("work failed")
	sys.fchdirErr = errors.New("bad file descriptor") // 让拆除也失败

	err := c.Run(func() error { return bodyErr })
	if !errors.Is(err, bodyErr) {
		t.Fatalf("Run error = %v, want body error %v", err, bodyErr)
	}
}

// TestRunTeardownError 测试 f 成功但拆除失败时错误向调用方传播
func TestRunTeardownError(t *testing.T) {
	c, sys := newTestContainer(t)
	teardownErr := errors.New("bad file descriptor")
	sys.fchdirErr = teardownErr

	err := c.Run(func() error { return nil })
	if !errors.Is(err, teardownErr) {
		t.Fatalf("Run error = %v, want teardown error %v", err, teardownErr)
	}
}

// TestRunPanic 测试 f 发生 panic 时监狱状态仍被完整回退
func TestRunPanic(t *testing.T) {
	c, _ := newTestContainer(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic did not propagate")
			}
		}()
		c.Run(func() error { panic("boom") })
	}()

	if c.Mounted() || c.Chrooted() {
		t.Errorf("after panic: mounted=%v chrooted=%v", c.Mounted(), c.Chrooted())
	}
}

// TestClose 测试 Close 强制回退全部状态且幂等
func TestClose(t *testing.T) {
	c, _ := newTestContainer(t)

	if err := c.Chroot(); err != nil {
		t.Fatalf("Chroot: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Mounted() || c.Chrooted() {
		t.Errorf("after Close: mounted=%v chrooted=%v", c.Mounted(), c.Chrooted())
	}
	if c.table.Live() != 0 {
		t.Errorf("live handles after Close = %d, want 0", c.table.Live())
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// TestCloseReportsTeardownFailure 测试 Close 返回拆除失败
func TestCloseReportsTeardownFailure(t *testing.T) {
	c, sys := newTestContainer(t)
	if err := c.Chroot(); err != nil {
		t.Fatalf("Chroot: %v", err)
	}
	teardownErr := errors.New("bad file descriptor")
	sys.fchdirErr = teardownErr

	if err := c.Close(); !errors.Is(err, teardownErr) {
		t.Errorf("Close error = %v, want %v", err, teardownErr)
	}
}

// TestMountRetryOnBusy 测试 EBUSY 时的有界重试
// 每次失败后回退本次已建立的挂载点，等待后重新应用
func TestMountRetryOnBusy(t *testing.T) {
	c, _ := newTestContainer(t)
	fm := &fakeMounter{mountErrs: []error{busyErr(), busyErr()}}
	c.mounter = fm

	if err := c.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !c.Mounted() {
		t.Error("mounted flag not set after successful retry")
	}
	if fm.mounts != 3 {
		t.Errorf("mount attempts = %d, want 3", fm.mounts)
	}
	if fm.umounts != 2 {
		t.Errorf("rollbacks = %d, want 2 (one per failed attempt)", fm.umounts)
	}
}

// TestMountRetryExhausted 测试重试次数用尽后安装失败
func TestMountRetryExhausted(t *testing.T) {
	c, _ := newTestContainer(t)
	fm := &fakeMounter{mountErrs: []error{busyErr(), busyErr(), busyErr()}}
	c.mounter = fm

	err := c.Mount()
	if !errors.Is(err, unix.EBUSY) {
		t.Fatalf("Mount error = %v, want EBUSY", err)
	}
	if c.Mounted() {
		t.Error("mounted flag set after exhausted retries")
	}
	if fm.mounts != 3 {
		t.Errorf("mount attempts = %d, want 3", fm.mounts)
	}
}

// TestMountNoRetryOnOtherError 测试非 EBUSY 错误不触发重试
func TestMountNoRetryOnOtherError(t *testing.T) {
	c, _ := newTestContainer(t)
	permErr := fmt.Errorf("mount table: /proc: %w", unix.EPERM)
	fm := &fakeMounter{mountErrs: []error{permErr}}
	c.mounter = fm

	if err := c.Mount(); !errors.Is(err, unix.EPERM) {
		t.Fatalf("Mount error = %v, want EPERM", err)
	}
	if fm.mounts != 1 {
		t.Errorf("mount attempts = %d, want 1", fm.mounts)
	}
	if fm.umounts != 0 {
		t.Errorf("rollbacks = %d, want 0", fm.umounts)
	}
}

// TestMountRollbackFailureStopsRetry 测试回退失败时放弃重试
// 返回的是挂载错误本身，回退失败只记入日志
func TestMountRollbackFailureStopsRetry(t *testing.T) {
	c, _ := newTestContainer(t)
	fm := &fakeMounter{
		mountErrs: []error{busyErr(), busyErr(), busyErr()},
		umountErr: errors.New("umount stuck"),
	}
	c.mounter = fm

	if err := c.Mount(); !errors.Is(err, unix.EBUSY) {
		t.Fatalf("Mount error = %v, want EBUSY", err)
	}
	if fm.mounts != 1 {
		t.Errorf("mount attempts = %d, want 1 (no retry after failed rollback)", fm.mounts)
	}
}

// TestAddMountAfterMount 测试挂载后添加的条目不会立刻生效
func TestAddMountAfterMount(t *testing.T) {
	c, _ := newTestContainer(t)

	if err := c.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	c.AddMount("tmpfs", mount.Mount{Target: "tmp", FsType: "tmpfs"})
	c.BindMount("/etc/resolv.conf", "etc/resolv.conf")
	if c.table.Live() != 0 {
		t.Errorf("entries applied retroactively: live = %d", c.table.Live())
	}
	if c.table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.table.Len())
	}
}

// TestContainerRoot 是需要 root 权限的完整流程测试
// 在真实内核上建立监狱、在内部写文件并验证拆除后无残留挂载点
func TestContainerRoot(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root")
	}

	root := t.TempDir()
	c, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	if err := c.Run(func() error {
		// 此处的 / 已经是监狱根目录
		if _, err := os.Stat("/proc/self"); err != nil {
			return fmt.Errorf("proc not mounted: %w", err)
		}
		return os.WriteFile("/inside", []byte("jail"), 0644)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if c.table.Live() != 0 {
		t.Errorf("live handles after Run = %d, want 0", c.table.Live())
	}
	if _, err := os.Stat(filepath.Join(root, "inside")); err != nil {
		t.Errorf("file written inside jail not visible outside: %v", err)
	}
	if now, err := os.Getwd(); err != nil || now != wd {
		t.Errorf("working directory not restored: %q, want %q (err=%v)", now, wd, err)
	}
}
