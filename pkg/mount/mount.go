package mount

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
)

// Mount 描述一个挂载点的全部属性
// 挂载源不在其中，由 Table 以键的形式单独维护
// 构造之后不应再修改
type Mount struct {
	Target string  // 容器内的目标路径（始终视为相对于容器根目录）
	FsType string  // 文件系统类型（如 proc、sysfs、tmpfs；绑定挂载留空）
	Data   string  // 挂载选项（如 size=64m 等）
	Flags  uintptr // 挂载标志（如 MS_RDONLY、MS_BIND 等）
}

// SanitizedTarget 返回去除所有前导路径分隔符后的目标路径
// 目标路径无论如何书写都被视为相对于容器根目录，
// 这可以防止绝对路径意外逃逸到真实根目录
func (m Mount) SanitizedTarget() string {
	return strings.TrimLeft(m.Target, "/")
}

// Path 返回目标路径在容器根目录 root 下解析后的完整路径
func (m Mount) Path(root string) string {
	return filepath.Join(root, m.SanitizedTarget())
}

// Depth 返回目标路径的深度，即路径组成部分的数量
// 容器根目录本身的深度为 0
func (m Mount) Depth() int {
	target := m.SanitizedTarget()
	if target == "" || target == "." {
		return 0
	}
	return strings.Count(target, "/") + 1
}

// Compare 在 (Target, FsType, Flags, Data) 上定义全序
// 返回值约定与 strings.Compare 相同
// 用于排序时的确定性兜底比较
func (m Mount) Compare(o Mount) int {
	if c := strings.Compare(m.Target, o.Target); c != 0 {
		return c
	}
	if c := strings.Compare(m.FsType, o.FsType); c != 0 {
		return c
	}
	if m.Flags != o.Flags {
		if m.Flags < o.Flags {
			return -1
		}
		return 1
	}
	return strings.Compare(m.Data, o.Data)
}

// IsBindMount 判断是否为绑定挂载
// 通过检查 MS_BIND 标志位来确定
func (m Mount) IsBindMount() bool {
	return m.Flags&syscall.MS_BIND == syscall.MS_BIND
}

// IsReadOnly 判断是否为只读挂载
// 通过检查 MS_RDONLY 标志位来确定
func (m Mount) IsReadOnly() bool {
	return m.Flags&syscall.MS_RDONLY == syscall.MS_RDONLY
}

// IsTmpFs 判断是否为 tmpfs 文件系统
func (m Mount) IsTmpFs() bool {
	return m.FsType == "tmpfs"
}

// String 返回挂载点的字符串表示
// 包含挂载类型、目标路径和读写权限等信息
func (m Mount) String() string {
	flag := "rw"
	if m.IsReadOnly() {
		flag = "ro"
	}
	switch {
	case m.IsBindMount():
		return fmt.Sprintf("bind[%s:%s]", m.Target, flag)
	case m.IsTmpFs():
		return fmt.Sprintf("tmpfs[%s]", m.Target)
	case m.FsType != "":
		return fmt.Sprintf("%s[%s:%s]", m.FsType, m.Target, flag)
	default:
		return fmt.Sprintf("mount[%s:%x,%s]", m.Target, m.Flags, m.Data)
	}
}
