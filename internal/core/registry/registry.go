// Package registry 维护按远端地址索引的对等节点注册表
package registry

import (
	"context"
	"sync"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/singleflight"
)

// Peer 一个已建立认证连接的远端节点
//
// 身份即远端地址。Conn 是这条连接上所有流共享的句柄，
// 按值传递即可廉价共享。
type Peer struct {
	Addr string
	Conn *quic.Conn
}

// OpenStream 在该节点的连接上打开一条新的双向流
func (p *Peer) OpenStream(ctx context.Context) (*quic.Stream, error) {
	return p.Conn.OpenStreamSync(ctx)
}

// Registry 并发安全的节点注册表
//
// 互斥锁只在连接建立/接受/拆除时竞争，不在逐帧数据路径上。
// 同一地址任何时候至多一条记录。
type Registry struct {
	mu    sync.Mutex
	peers map[string]*Peer

	// dials 合并针对同一地址的并发连接尝试
	dials singleflight.Group
}

// New 创建注册表
func New() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
	}
}

// Connect 确保地址上存在连接
//
// 已有记录时直接返回；否则执行 dial。并发调用同一未知地址
// 被 singleflight 合并，最终只有一次真实拨号。dial 成功时
// 负责通过 Add 注册节点。
func (r *Registry) Connect(addr string, dial func() error) error {
	if _, ok := r.Get(addr); ok {
		return nil
	}

	_, err, _ := r.dials.Do(addr, func() (any, error) {
		// 合并窗口内可能已有人完成注册
		if _, ok := r.Get(addr); ok {
			return nil, nil
		}
		return nil, dial()
	})
	return err
}

// Get 查找地址对应的节点
func (r *Registry) Get(addr string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[addr]
	return p, ok
}

// Add 注册节点
//
// 同地址的旧记录被替换（后来者获胜），保证单地址单记录。
func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[p.Addr] = p
}

// Remove 移除地址对应的记录
//
// 只影响该地址，不触碰其它节点。
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.peers, addr)
}

// Addrs 返回当前全部已注册地址
func (r *Registry) Addrs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	addrs := make([]string, 0, len(r.peers))
	for addr := range r.peers {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Len 返回当前记录数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.peers)
}

// Drain 移除并返回全部节点，用于关停时统一关闭连接
func (r *Registry) Drain() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.peers = make(map[string]*Peer)
	return peers
}
