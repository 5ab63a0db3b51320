/*
Package container 实现了一个最小的 chroot 监狱。

Container 将挂载表和 chroot 状态切换组合成一个状态机：
挂载 → chroot → （调用方的工作）→ 退出 chroot → 卸载。
创建时自动填充最小虚拟文件系统集合（proc、sys、/dev 和
/dev/pts 的绑定挂载），调用方可以在挂载前继续添加条目。

进入 chroot 前会保存当前工作目录和真实根目录的文件描述符，
退出时通过 fchdir 回到保存的位置，即使原路径已经被卸载或
改名也能正确返回。

Close 保证无论控制流如何离开作用域（成功、出错、panic 后的
defer），已建立的挂载点和 chroot 状态都会被完整回退，不会向
系统泄漏挂载点。典型用法：

	c, err := container.New("/tmp/jail")
	if err != nil {
		...
	}
	defer c.Close()

	err = c.Run(func() error {
		// 此处已在监狱内部
		return nil
	})

注意：chroot 和挂载命名空间都是进程级的内核状态，
同一时刻整个进程只应有一个活动的 Container。
*/
package container
