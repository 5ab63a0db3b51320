// jail 是 container 包的命令行驱动
// 在指定目录创建一个 chroot 监狱并在其中运行命令，
// 命令结束后保证监狱状态被完整回退
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jail/container"
	"github.com/zqzqsb/jail/pkg/fstab"
	"github.com/zqzqsb/jail/pkg/mount"
	"github.com/zqzqsb/jail/pkg/rlimit"
	"github.com/zqzqsb/jail/pkg/seccomp"
)

var (
	// 标志
	rootPath    string
	fstabPath   string
	binds       []string
	seccompPath string
	hostMount   bool
	verbose     bool
	limits      rlimit.RLimits
)

// rootCmd 是基础命令
var rootCmd = &cobra.Command{
	Use:   "jail",
	Short: "jail - minimal chroot jails with guaranteed teardown",
	Long: `jail creates a chroot jail at a target directory, mounts a minimal
set of virtual filesystems into it, and runs a command inside. Every
mount and the chroot itself are reversed when the command exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// runCmd 在监狱内运行一条命令
var runCmd = &cobra.Command{
	Use:   "run --root DIR -- COMMAND [ARGS...]",
	Short: "Run a command inside a chroot jail",
	Long: `Run a command inside a chroot jail rooted at --root.
The jail gets proc, sysfs and bind mounts of /dev and /dev/pts by
default; additional mounts come from --bind and --fstab. The mounts
and the chroot are torn down after the command exits, even on failure.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJail,
}

func runJail(cmd *cobra.Command, args []string) error {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	c, err := container.New(rootPath)
	if err != nil {
		return err
	}
	defer c.Close()

	if hostMount {
		c.HostBindMount()
	}
	if fstabPath != "" {
		entries, err := fstab.Load(fstabPath)
		if err != nil {
			return err
		}
		for _, e := range entries {
			m, err := e.Mount()
			if err != nil {
				return err
			}
			c.AddMount(e.Source, m)
		}
	}
	for _, b := range binds {
		source, m, err := parseBind(b)
		if err != nil {
			return err
		}
		c.AddMount(source, m)
	}

	var policy *seccomp.Policy
	if seccompPath != "" {
		if policy, err = seccomp.LoadPolicyFile(seccompPath); err != nil {
			return err
		}
	}

	return c.Run(func() error {
		// 此处已在监狱内部
		// 资源限制和 seccomp 过滤器都随 exec 继承给命令
		if err := limits.Apply(); err != nil {
			return err
		}
		if policy != nil {
			if err := policy.Load(); err != nil {
				return err
			}
		}
		command := exec.Command(args[0], args[1:]...)
		command.Stdin = os.Stdin
		command.Stdout = os.Stdout
		command.Stderr = os.Stderr
		command.Env = os.Environ()
		return command.Run()
	})
}

// parseBind 解析 --bind 的 SRC:DST[:ro] 格式
func parseBind(s string) (string, mount.Mount, error) {
	parts := strings.Split(s, ":")
	var flags uintptr = unix.MS_BIND
	switch len(parts) {
	case 2:
	case 3:
		if parts[2] != "ro" {
			return "", mount.Mount{}, fmt.Errorf("bad bind mode %q in %q (want ro)", parts[2], s)
		}
		flags |= unix.MS_RDONLY
	default:
		return "", mount.Mount{}, fmt.Errorf("bad bind %q (want SRC:DST[:ro])", s)
	}
	if parts[0] == "" || parts[1] == "" {
		return "", mount.Mount{}, fmt.Errorf("bad bind %q (empty source or target)", s)
	}
	return parts[0], mount.Mount{Target: parts[1], Flags: flags}, nil
}

func init() {
	runCmd.Flags().StringVarP(&rootPath, "root", "r", "", "jail root directory (required)")
	runCmd.MarkFlagRequired("root")
	runCmd.Flags().StringVar(&fstabPath, "fstab", "", "yaml file with additional mounts")
	runCmd.Flags().StringArrayVarP(&binds, "bind", "b", nil, "additional bind mount SRC:DST[:ro]")
	runCmd.Flags().StringVar(&seccompPath, "seccomp", "", "yaml seccomp policy for the command")
	runCmd.Flags().BoolVar(&hostMount, "host-mount", false, "bind the real root at run/host inside the jail")
	runCmd.Flags().Uint64Var(&limits.CPU, "cpu", 0, "CPU time limit in seconds")
	runCmd.Flags().Uint64Var(&limits.FileSize, "fsize", 0, "file size limit in bytes")
	runCmd.Flags().Uint64Var(&limits.AddressSpace, "memory", 0, "address space limit in bytes")
	runCmd.Flags().Uint64Var(&limits.OpenFile, "nofile", 0, "open file limit")
	runCmd.Flags().BoolVar(&limits.DisableCore, "no-core", false, "disable core dumps")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
