package helium

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/zsl99a/helium/internal/core/endpoint"
	"github.com/zsl99a/helium/internal/core/registry"
	"github.com/zsl99a/helium/internal/core/wire"
	"github.com/zsl99a/helium/pkg/lib/log"
)

var logger = log.Logger("helium")

// Runtime 点对点通信运行时
//
// 一个 Runtime 即一个节点：它既可以向远端拨号发起流，
// 也可以监听地址受理入站连接，角色对称。每个远端地址
// 至多维持一条认证连接，其上多路复用任意数量的逻辑流。
type Runtime struct {
	endpoint *endpoint.Endpoint
	peers    *registry.Registry
	services *serviceTable

	mu        sync.Mutex
	listeners []*quic.Listener
	closed    atomic.Bool
}

// New 创建运行时
//
// 服务集合在此冻结，之后不可再注册。
func New(opts ...Option) (*Runtime, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	ep, err := endpoint.New(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		endpoint: ep,
		peers:    registry.New(),
		services: newServiceTable(cfg.services),
	}, nil
}

// OpenStream 向远端节点打开一条指定服务的逻辑流
//
// 若尚无到该地址的连接则先拨号建立；针对同一地址的并发
// 调用只产生一次真实拨号。流上第一帧是协商消息，之后流
// 归调用方所有，按该服务的应用协议自由收发。
func (r *Runtime) OpenStream(ctx context.Context, addr string, name ServiceName) (*Stream, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("解析对端地址失败: %w", err)
	}
	key := udpAddr.String()

	err = r.peers.Connect(key, func() error {
		conn, err := r.endpoint.Dial(ctx, key)
		if err != nil {
			return err
		}
		r.serve(conn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	peer, ok := r.peers.Get(key)
	if !ok {
		// 拨号成功与此处查找之间连接已被拆除
		return nil, fmt.Errorf("%w: %s", ErrNoPeer, key)
	}

	raw, err := peer.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("打开流失败: %w", err)
	}

	stream := wire.NewStream(raw)
	if err := stream.SendMsg(&wire.Negotiate{ServiceName: string(name)}); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("发送协商消息失败: %w", err)
	}
	return stream, nil
}

// ListenAddr 在地址上监听入站连接
//
// 绑定完成后立即返回，受理循环在后台运行。同一运行时可以
// 先拨号再监听，二者共享同一个本地端口。
func (r *Runtime) ListenAddr(ctx context.Context, addr string) error {
	if r.closed.Load() {
		return ErrClosed
	}

	ln, err := r.endpoint.Listen(addr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listeners = append(r.listeners, ln)
	r.mu.Unlock()

	logger.Info("开始监听", "addr", ln.Addr().String())

	go func() {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				if !r.closed.Load() && !errors.Is(err, context.Canceled) {
					logger.Warn("受理连接失败", "err", err)
				}
				return
			}
			r.serve(conn)
		}
	}()

	return nil
}

// Addr 返回本地 socket 地址，尚未绑定时为 nil
func (r *Runtime) Addr() net.Addr {
	return r.endpoint.Addr()
}

// Peers 返回当前已连接的远端地址
func (r *Runtime) Peers() []string {
	return r.peers.Addrs()
}

// serve 接管一条新建立的连接
//
// 出站与入站连接走同一条路径：注册节点，然后在后台循环
// 受理对端打开的流。连接终结时节点记录随之移除。
func (r *Runtime) serve(conn *quic.Conn) {
	addr := conn.RemoteAddr().String()
	r.peers.Add(&registry.Peer{Addr: addr, Conn: conn})

	logger.Debug("连接建立", "peer", addr)

	go func() {
		defer func() {
			r.peers.Remove(addr)
			logger.Debug("连接断开", "peer", addr)
		}()

		for {
			raw, err := conn.AcceptStream(context.Background())
			if err != nil {
				return
			}
			go func() {
				if err := r.handleStream(wire.NewStream(raw)); err != nil {
					logger.Debug("流处理结束", "peer", addr, "err", err)
				}
			}()
		}
	}()
}

// handleStream 处理一条入站流
//
// 读取协商帧并分发给对应服务。协商失败或服务未注册时
// 静默关闭该流，不回发任何错误帧，连接不受影响。
func (r *Runtime) handleStream(stream *Stream) error {
	var neg wire.Negotiate
	if err := stream.RecvMsg(&neg); err != nil {
		_ = stream.Close()
		return fmt.Errorf("接收协商消息失败: %w", err)
	}

	handler, ok := r.services.lookup(ServiceName(neg.ServiceName))
	if !ok {
		_ = stream.Close()
		return fmt.Errorf("%w: %q", ErrNoHandler, neg.ServiceName)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("服务处理器 panic", "service", neg.ServiceName, "panic", rec)
			_ = stream.Close()
		}
	}()
	handler.Handle(context.Background(), stream, r)
	return nil
}

// Close 关闭运行时
//
// 停止全部监听器，关闭全部连接与底层端点。重复调用无害。
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error

	r.mu.Lock()
	listeners := r.listeners
	r.listeners = nil
	r.mu.Unlock()
	for _, ln := range listeners {
		err = multierr.Append(err, ln.Close())
	}

	for _, p := range r.peers.Drain() {
		err = multierr.Append(err, p.Conn.CloseWithError(0, "runtime closed"))
	}

	err = multierr.Append(err, r.endpoint.Close())
	return err
}
