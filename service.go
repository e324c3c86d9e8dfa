package helium

import "context"

// ServiceName 服务名
//
// 不透明的值相等字符串标识，服务表的不可变键。
type ServiceName string

// Handler 服务处理器
//
// 处理一条已完成协商的入站流。stream 定位在协商帧之后；
// rt 是运行时句柄，处理器可以用它再去 OpenStream 别的节点。
// 返回即表示这条流处理完毕，分发器不观察处理结果。
type Handler interface {
	Handle(ctx context.Context, stream *Stream, rt *Runtime)
}

// HandlerFunc 函数形式的处理器
type HandlerFunc func(ctx context.Context, stream *Stream, rt *Runtime)

// Handle 实现 Handler 接口
func (f HandlerFunc) Handle(ctx context.Context, stream *Stream, rt *Runtime) {
	f(ctx, stream, rt)
}

// serviceTable 服务表
//
// 构造之后不可变：所有注册都发生在 New 的选项里，
// 任何连接被服务之前服务集合就已冻结。
type serviceTable struct {
	handlers map[ServiceName]Handler
}

// newServiceTable 拷贝注册表并冻结
func newServiceTable(m map[ServiceName]Handler) *serviceTable {
	handlers := make(map[ServiceName]Handler, len(m))
	for name, h := range m {
		handlers[name] = h
	}
	return &serviceTable{handlers: handlers}
}

// lookup 查找服务名对应的处理器
func (t *serviceTable) lookup(name ServiceName) (Handler, bool) {
	h, ok := t.handlers[name]
	return h, ok
}
