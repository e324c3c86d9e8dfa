package helium

import "errors"

// 公共错误定义
var (
	// ErrClosed 运行时已关闭
	ErrClosed = errors.New("runtime closed")

	// ErrNoPeer 拨号完成后注册表中找不到节点
	// 出现它说明连接在竞争窗口内被拆除
	ErrNoPeer = errors.New("no peer")

	// ErrNoHandler 服务名未注册
	ErrNoHandler = errors.New("no handler for service")
)
