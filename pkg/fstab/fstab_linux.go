package fstab

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jail/pkg/mount"
)

// flagNames 是配置文件中可用的挂载标志名称
var flagNames = map[string]uintptr{
	"bind":    unix.MS_BIND,
	"rbind":   unix.MS_BIND | unix.MS_REC,
	"ro":      unix.MS_RDONLY,
	"rdonly":  unix.MS_RDONLY,
	"rec":     unix.MS_REC,
	"nosuid":  unix.MS_NOSUID,
	"nodev":   unix.MS_NODEV,
	"noexec":  unix.MS_NOEXEC,
	"noatime": unix.MS_NOATIME,
	"private": unix.MS_PRIVATE,
}

// parseFlags 将标志名称列表合并为标志位
func parseFlags(names []string) (uintptr, error) {
	var flags uintptr
	for _, name := range names {
		f, ok := flagNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown mount flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

// Mount 将配置条目转换为挂载点
func (e Entry) Mount() (mount.Mount, error) {
	flags, err := parseFlags(e.Flags)
	if err != nil {
		return mount.Mount{}, fmt.Errorf("fstab: %s: %w", e.Target, err)
	}
	return mount.Mount{
		Target: e.Target,
		FsType: e.FsType,
		Data:   e.Data,
		Flags:  flags,
	}, nil
}

// Table 将配置条目列表转换为挂载表
func Table(entries []Entry) (*mount.Table, error) {
	t := mount.NewTable()
	for _, e := range entries {
		m, err := e.Mount()
		if err != nil {
			return nil, err
		}
		t.Add(e.Source, m)
	}
	return t, nil
}
