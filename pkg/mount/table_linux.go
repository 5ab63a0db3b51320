package mount

import "fmt"

// Mount 按排序后的顺序建立挂载表中的全部挂载点
// 每个成功建立的挂载点都会立即记入 Handle 列表
// 中途失败时不回滚已经建立的挂载点：它们保留在 Handle
// 列表中，随后的 Umount 仍然可以完整拆除这部分状态
func (t *Table) Mount(root string) error {
	for _, e := range t.sorted() {
		h, err := e.mount.Mount(e.source, root)
		if err != nil {
			return fmt.Errorf("mount table: %s: %w", e.source, err)
		}
		t.handles = append(t.handles, h)
	}
	return nil
}

// Umount 按挂载的严格逆序释放所有 Handle
// 嵌套的挂载点先于其父挂载点拆除
// 每个 Handle 在卸载成功后才从列表中移除，成功的卸载不会
// 重复执行；失败时立即返回，失败的 Handle 和尚未处理的
// Handle 都留在列表中，后续的 Umount 可以继续尝试
func (t *Table) Umount() error {
	for len(t.handles) > 0 {
		last := len(t.handles) - 1
		if err := t.handles[last].Unmount(); err != nil {
			return fmt.Errorf("umount table: %w", err)
		}
		t.handles = t.handles[:last]
	}
	return nil
}
