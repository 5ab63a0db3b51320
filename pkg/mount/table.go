package mount

import "sort"

// Table 是容器的挂载表，相当于容器专用的 fstab
// 以挂载源为键维护挂载点集合，并持有挂载后产生的 Handle 列表
// Handle 列表始终保持实际挂载时的顺序，逆序遍历即可安全卸载
type Table struct {
	entries map[string]Mount // 挂载源 → 挂载点
	handles []*Handle        // 活动挂载点，按挂载顺序排列
}

// entry 是排序时使用的 (挂载源, 挂载点) 对
type entry struct {
	source string
	mount  Mount
}

// NewTable 创建一个空的挂载表
func NewTable() *Table {
	return &Table{
		entries: make(map[string]Mount),
	}
}

// Add 向挂载表中添加一个挂载点
// 同一个挂载源的后一次添加会覆盖前一次
// 挂载表可以在挂载前任意修改，对已经建立的挂载点没有影响
func (t *Table) Add(source string, m Mount) {
	t.entries[source] = m
}

// SetTable 整体替换挂载表的内容
func (t *Table) SetTable(entries map[string]Mount) {
	t.entries = make(map[string]Mount, len(entries))
	for source, m := range entries {
		t.entries[source] = m
	}
}

// Adopt 将一个在挂载表之外建立的 Handle 纳入挂载表管理
// 例如调用方自行调用 Mount.Mount 建立的挂载点
// 被收养的 Handle 与表内挂载点一样参与 Umount 的逆序释放
func (t *Table) Adopt(h *Handle) {
	t.handles = append(t.handles, h)
}

// Len 返回挂载表中的挂载点数量
func (t *Table) Len() int {
	return len(t.entries)
}

// Live 返回当前活动的挂载点数量
func (t *Table) Live() int {
	return len(t.handles)
}

// sorted 按挂载顺序返回所有挂载点：
//   - 目标是容器根目录本身（深度 0）的挂载点最先
//   - 其余按深度升序，浅路径先于深路径
//   - 同深度按目标路径字典序
//   - 目标路径也相同时依次比较文件系统类型、标志位、挂载选项和挂载源
//
// 这保证父目录的挂载点总是先于其下嵌套的挂载点建立，
// 并且对相同的挂载表，排序结果在多次运行之间完全一致
func (t *Table) sorted() []entry {
	ordered := make([]entry, 0, len(t.entries))
	for source, m := range t.entries {
		ordered = append(ordered, entry{source: source, mount: m})
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].mount, ordered[j].mount
		if da, db := a.Depth(), b.Depth(); da != db {
			return da < db
		}
		// 字典序比较使用清理后的目标路径，
		// 绝对写法和相对写法的同一目标排序结果一致
		if ta, tb := a.SanitizedTarget(), b.SanitizedTarget(); ta != tb {
			return ta < tb
		}
		if c := a.Compare(b); c != 0 {
			return c < 0
		}
		return ordered[i].source < ordered[j].source
	})
	return ordered
}
