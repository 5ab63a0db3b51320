/*
Package mount 提供了构建 chroot 监狱所需的挂载点管理功能。

主要功能：

1. Mount 结构体：
   - 描述一个挂载点（容器内目标路径、文件系统类型、标志位、挂载选项）
   - 目标路径自动视为相对于容器根目录，防止意外逃逸到真实根目录
   - 执行挂载后返回 Handle，释放 Handle 即完成卸载

2. Table 挂载表：
   - 以挂载源为键维护挂载点集合，类似容器专用的 fstab
   - 按深度排序后依次挂载：根目录最先，浅路径先于深路径，
     同深度按字典序，保证父目录挂载点先于嵌套挂载点建立
   - 按挂载的严格逆序卸载，嵌套挂载点先于父挂载点拆除

3. Builder 模式：
   - 提供流式 API 来构建常用挂载表
   - 支持绑定挂载、tmpfs、proc、sysfs 等常见类型

使用示例：

	table := mount.NewBuilder().
		WithProc().                    // proc 文件系统
		WithSysfs().                   // sysfs 文件系统
		WithBind("/usr", "usr", true). // 只读绑定挂载
		Build()

	err := table.Mount("/tmp/jail") // 按深度顺序挂载
	...
	err = table.Umount()            // 按逆序卸载
*/
package mount
