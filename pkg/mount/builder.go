package mount

// Builder 以链式调用的方式构建挂载表
type Builder struct {
	entries []entry
}

// NewBuilder 创建一个新的挂载表构建器
// 返回构建器指针以支持链式调用
func NewBuilder() *Builder {
	return &Builder{}
}

// WithMount 添加一个任意配置的挂载点
// 返回构建器自身以支持链式调用
func (b *Builder) WithMount(source string, m Mount) *Builder {
	b.entries = append(b.entries, entry{source: source, mount: m})
	return b
}

// Build 将构建器中的配置转换为挂载表
// 同一个挂载源出现多次时，最后一次添加生效
func (b *Builder) Build() *Table {
	t := NewTable()
	for _, e := range b.entries {
		t.Add(e.source, e.mount)
	}
	return t
}
