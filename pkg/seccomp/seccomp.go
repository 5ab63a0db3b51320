// Package seccomp 提供了对监狱内命令的系统调用过滤功能。
// seccomp (secure computing mode) 是 Linux 内核提供的安全机制，
// 用于限制进程可以使用的系统调用。
//
// Policy 以允许列表的方式描述过滤策略，可以从 yaml 文件加载，
// 编译为 BPF 过滤器后安装到当前进程，随 exec 继承给监狱内的命令。
package seccomp

import "fmt"

// Action 定义了系统调用的处理动作
type Action uint32

// Action 常量定义
const (
	ActionInvalid Action = iota // 无效动作
	ActionAllow                 // 允许系统调用
	ActionErrno                 // 返回错误码
	ActionLog                   // 记录后放行
	ActionKill                  // 终止进程
)

// ParseAction 将配置文件中的动作名称转换为 Action
func ParseAction(name string) (Action, error) {
	switch name {
	case "allow":
		return ActionAllow, nil
	case "errno":
		return ActionErrno, nil
	case "log":
		return ActionLog, nil
	case "kill":
		return ActionKill, nil
	default:
		return ActionInvalid, fmt.Errorf("seccomp: unknown action %q", name)
	}
}

// String 返回动作的名称
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionErrno:
		return "errno"
	case ActionLog:
		return "log"
	case ActionKill:
		return "kill"
	default:
		return "invalid"
	}
}
