package wire

// Negotiate 协商消息
//
// 流的打开方在新流上发送的第一帧，选定这条流路由到的服务。
// 单向、无确认：响应方没有该服务时直接丢弃流，不回发任何
// 错误帧。确认属于上层协议的职责。
type Negotiate struct {
	ServiceName string `cbor:"service_name"`
}
