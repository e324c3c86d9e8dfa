package helium

import "github.com/zsl99a/helium/internal/core/wire"

// Version 当前版本
const Version = "v0.3.0"

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Stream 分帧消息流
//
// OpenStream 返回的流已经定位在协商帧之后，处理器收到的流
// 同样如此：双方的第一帧应用数据从这里开始。
type Stream = wire.Stream

// Negotiate 协商消息
//
// 每条新流上的第一帧，由流的打开方发送。
type Negotiate = wire.Negotiate
