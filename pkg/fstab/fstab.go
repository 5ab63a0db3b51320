// Package fstab 解析 yaml 格式的容器挂载表配置文件
// 配置文件是一个挂载条目列表，例如：
//
//	- source: /proc
//	  target: proc
//	  fstype: proc
//	- source: /home/work
//	  target: work
//	  flags: [bind, ro]
//	- source: tmpfs
//	  target: tmp
//	  fstype: tmpfs
//	  data: size=64m
package fstab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry 是配置文件中的一个挂载条目
type Entry struct {
	Source string   `yaml:"source"`           // 挂载源
	Target string   `yaml:"target"`           // 容器内的目标路径
	FsType string   `yaml:"fstype,omitempty"` // 文件系统类型
	Data   string   `yaml:"data,omitempty"`   // 挂载选项
	Flags  []string `yaml:"flags,omitempty"`  // 挂载标志名称列表
}

// Parse 解析 yaml 内容为挂载条目列表
// 每个条目的挂载源和目标路径都不能为空
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("fstab: parse: %w", err)
	}
	for i, e := range entries {
		if e.Source == "" {
			return nil, fmt.Errorf("fstab: entry %d: source is empty", i)
		}
		if e.Target == "" {
			return nil, fmt.Errorf("fstab: entry %d: target is empty", i)
		}
	}
	return entries, nil
}

// Load 读取并解析配置文件
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fstab: read %s: %w", path, err)
	}
	return Parse(data)
}
