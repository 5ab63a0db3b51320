package seccomp

import (
	"fmt"
	"os"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"gopkg.in/yaml.v3"
)

// Policy 以允许列表的方式描述一个系统调用过滤策略
// 不在任何列表中的系统调用按 Default 动作处理
type Policy struct {
	Default Action   `yaml:"default"`         // 默认动作
	Allow   []string `yaml:"allow,omitempty"` // 允许执行的系统调用列表
	Errno   []string `yaml:"errno,omitempty"` // 返回 EPERM 的系统调用列表
	Log     []string `yaml:"log,omitempty"`   // 记录后放行的系统调用列表
}

// UnmarshalYAML 支持在配置文件中以名称书写动作
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	act, err := ParseAction(name)
	if err != nil {
		return err
	}
	*a = act
	return nil
}

// LoadPolicyFile 从 yaml 文件加载过滤策略
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seccomp: read %s: %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("seccomp: parse %s: %w", path, err)
	}
	if p.Default == ActionInvalid {
		return nil, fmt.Errorf("seccomp: %s: default action is required", path)
	}
	return &p, nil
}

// assemble 将策略转换为 go-seccomp-bpf 的策略表示
func (p *Policy) assemble() libseccomp.Policy {
	policy := libseccomp.Policy{
		DefaultAction: toSeccompAction(p.Default),
	}
	groups := []struct {
		names  []string
		action libseccomp.Action
	}{
		{p.Allow, libseccomp.ActionAllow},
		{p.Errno, libseccomp.ActionErrno},
		{p.Log, libseccomp.ActionLog},
	}
	for _, g := range groups {
		if len(g.names) == 0 {
			continue
		}
		policy.Syscalls = append(policy.Syscalls, libseccomp.SyscallGroup{
			Action: g.action,
			Names:  g.names,
		})
	}
	return policy
}

// Filter 将策略编译为 BPF 过滤器
//
// 过程：
// 1. 转换为 go-seccomp-bpf 的策略表示
// 2. 汇编为 BPF 指令序列
// 3. 转换为内核可读格式
func (p *Policy) Filter() (Filter, error) {
	policy := p.assemble()
	program, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble: %w", err)
	}
	return exportBPF(program)
}

// Load 将策略编译并安装到当前进程
// 安装前会设置 no_new_privs，防止通过 setuid 程序绕过过滤
// 过滤器随 exec 继承，因此在启动监狱内命令之前调用即可
// 注意：过滤器一旦安装就无法移除
func (p *Policy) Load() error {
	filter := libseccomp.Filter{
		NoNewPrivs: true,
		Flag:       libseccomp.FilterFlagTSync,
		Policy:     p.assemble(),
	}
	if err := libseccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("seccomp: load filter: %w", err)
	}
	return nil
}

// toSeccompAction 将我们的 Action 类型转换为 go-seccomp-bpf 的动作类型
// 转换对应关系：
//   - ActionAllow -> ActionAllow       (允许系统调用)
//   - ActionErrno -> ActionErrno       (返回错误)
//   - ActionLog   -> ActionLog         (记录后放行)
//   - 其他        -> ActionKillProcess (终止进程)
func toSeccompAction(a Action) libseccomp.Action {
	switch a {
	case ActionAllow:
		return libseccomp.ActionAllow
	case ActionErrno:
		return libseccomp.ActionErrno
	case ActionLog:
		return libseccomp.ActionLog
	default:
		return libseccomp.ActionKillProcess
	}
}
