// Package helium 是一个点对点通信运行时
//
// 节点之间建立双向认证、加密、多路复用的 QUIC 连接；每条
// 连接上可以打开任意多条相互独立的逻辑流，每条流通过一次
// 单消息协商握手路由到命名的服务处理器。拨号方与接受方
// 完全对称：任一方都可以监听、拨号、注册服务。
//
// 基本用法：
//
//	rt, err := helium.New(
//	    helium.WithTLS("certs/ca.crt", "certs/node.crt", "certs/node.key"),
//	    helium.WithServiceFunc("echo", func(ctx context.Context, st *helium.Stream, rt *helium.Runtime) {
//	        for {
//	            b, err := st.RecvBytes()
//	            if err != nil {
//	                return
//	            }
//	            if err := st.SendBytes(b); err != nil {
//	                return
//	            }
//	        }
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	if err := rt.ListenAddr(ctx, "0.0.0.0:4242"); err != nil {
//	    log.Fatal(err)
//	}
//
//	st, err := rt.OpenStream(ctx, "198.51.100.7:4242", "echo")
//
// 配套原语 pkg/broadcast 提供有界环形广播缓冲，让多个独立
// 消费者各自回放同一个异步序列而不必重复驱动生产；
// pkg/timesource 提供喂给它的定时事件源。
package helium
