// Package broadcast 实现有界环形广播缓冲
//
// 将一个异步序列（channel）扇出给 N 个相互独立的读者：
// 序列只被拉取一次，每个读者各自独立消费，内存有界。
//
// 并发方案：自旋锁方案（序列门锁 + 拉取锁 + 唤醒锁），而不是
// 一把粗粒度互斥锁，避免逐项热路径上的调度开销。持自旋锁的
// 临界区都是 O(1) 有界的；唯一的例外是序列门锁，它只用
// TryLock 抢占，从不自旋等待。
//
// 固定加锁顺序：recvLock -> pullLock -> wakerLock，
// 任何路径都不得反序，否则可能与正在注册等待者的读者死锁。
package broadcast

import (
	"errors"
	"sync/atomic"

	"github.com/zsl99a/helium/pkg/lib/spinlock"
)

const (
	// DefaultCapacity 默认槽位容量
	DefaultCapacity = 128

	// pullBatch 单次持锁从底层序列拉取的最大条数
	// 限制批量上界，保证拉取临界区有界
	pullBatch = 16

	// minCapacity 最小槽位容量
	minCapacity = 2
)

// ErrClosed 底层序列已耗尽且缓冲内容已读完
var ErrClosed = errors.New("broadcast buffer closed")

// Buffer 有界环形广播缓冲
//
// 槽位构成一个容量为 C 的环；写游标单调递增，槽位下标取模。
// 落后超过 C 条的读者会被静默覆盖：读到的是后来写入同一槽位
// 的新值，没有任何陈旧信号。这是刻意的有损投递策略，换取
// 内存有界。套圈之后的槽位读取与覆盖写入之间没有同步，
// 多字长的 T 可能读到撕裂值（见 Reader 的说明）。
type Buffer[T any] struct {
	src <-chan T

	// slots 仅在持有 pullLock 时写入；
	// 读者无锁读取已提交槽位（先写槽位、后推进游标保证可见性）
	slots  []T
	cursor atomic.Uint64 // 单调写游标，slot = cursor % len(slots)

	closed atomic.Bool

	// recvLock 序列门锁：任意时刻至多一个读者从 src 接收，
	// 保证提交顺序与生产顺序一致。只 TryLock，从不自旋等待，
	// 因为持有者可能长时间阻塞在 src 上（见 Reader.Recv）
	recvLock spinlock.Lock

	// pullLock 保护槽位提交与 closed 置位
	pullLock spinlock.Lock

	wakerLock spinlock.Lock
	waiters   []chan struct{}
}

// Option 缓冲配置选项
type Option func(*settings)

type settings struct {
	capacity int
}

// WithCapacity 设置槽位容量
//
// 小于最小容量的取值按最小容量处理。
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n < minCapacity {
			n = minCapacity
		}
		s.capacity = n
	}
}

// New 创建广播缓冲
//
// src 是唯一的底层序列。src 为 nil 时缓冲只能通过 Repair
// 注入数据。
func New[T any](src <-chan T, opts ...Option) *Buffer[T] {
	s := &settings{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(s)
	}

	return &Buffer[T]{
		src:   src,
		slots: make([]T, s.capacity),
	}
}

// Reader 创建新读者
//
// 游标从缓冲的当前写位置开始：追赶语义，从不回放历史。
func (b *Buffer[T]) Reader() *Reader[T] {
	return &Reader[T]{
		buf:    b,
		cursor: b.cursor.Load(),
	}
}

// Repair 带外注入一条数据
//
// 当底层序列自身无法产出矫正值时使用：阻塞获取拉取锁，
// 写入当前写槽位并推进游标，唤醒全部等待者。
func (b *Buffer[T]) Repair(item T) {
	b.pullLock.Lock()
	b.commit(item)
	b.wakeAll()
	b.pullLock.Unlock()
}

// Close 标记序列结束
//
// 唤醒全部等待者；读者读完已提交内容后 Recv 返回 ErrClosed。
// 底层 channel 被关闭时会自动进入同一状态，定时器等无限
// 序列永远不会触发。
func (b *Buffer[T]) Close() {
	b.pullLock.Lock()
	b.closed.Store(true)
	b.wakeAll()
	b.pullLock.Unlock()
}

// poll 尝试为游标 rc 取出一条数据
//
// 三段式（对应读者的一次非阻塞轮询）：
//  1. rc 落后于写游标：槽位已提交，无锁直接返回
//  2. 非阻塞抢到序列门锁：批量拉取至多 pullBatch 条，
//     有新数据则唤醒全部等待者并返回刚就绪的一条
//  3. 都不成立：调用方注册等待者后挂起，由下一个完成
//     第 2 步的读者（或 Repair/Close）负责唤醒
func (b *Buffer[T]) poll(rc uint64) (item T, ok bool, err error) {
	var zero T

	if rc != b.cursor.Load() {
		return b.slot(rc), true, nil
	}

	if b.recvLock.TryLock() {
		b.pullLock.Lock()
		moved := b.pullLocked()
		if moved || b.closed.Load() {
			// 仍持有拉取锁：满足 pullLock -> wakerLock 的固定顺序
			b.wakeAll()
		}
		b.pullLock.Unlock()
		b.recvLock.Unlock()

		if rc != b.cursor.Load() {
			return b.slot(rc), true, nil
		}
	}

	if b.closed.Load() {
		return zero, false, ErrClosed
	}
	return zero, false, nil
}

// pullLocked 从底层序列批量拉取
//
// 调用方必须同时持有 recvLock 与 pullLock。至多拉取
// pullBatch 条，底层序列未就绪时提前停止；channel 关闭则
// 进入 closed 状态。
func (b *Buffer[T]) pullLocked() (moved bool) {
	if b.src == nil || b.closed.Load() {
		return false
	}

	for i := 0; i < pullBatch; i++ {
		select {
		case v, open := <-b.src:
			if !open {
				b.closed.Store(true)
				return moved
			}
			b.commit(v)
			moved = true
		default:
			return moved
		}
	}
	return moved
}

// ingest 提交一条由等待读者直接收到的数据
//
// 调用方必须持有 recvLock。提交后顺带批量拉取一轮，
// 然后唤醒全部等待者。
func (b *Buffer[T]) ingest(v T, open bool) {
	b.pullLock.Lock()
	if open {
		b.commit(v)
		b.pullLocked()
	} else {
		b.closed.Store(true)
	}
	b.wakeAll()
	b.pullLock.Unlock()
}

// commit 提交一条数据，调用方必须持有 pullLock
//
// 先写槽位、后推进游标：无锁快路径只会读到已提交槽位。
func (b *Buffer[T]) commit(v T) {
	pos := b.cursor.Load()
	b.slots[pos%uint64(len(b.slots))] = v
	b.cursor.Store(pos + 1)
}

// slot 返回游标对应槽位的内容
func (b *Buffer[T]) slot(pos uint64) T {
	return b.slots[pos%uint64(len(b.slots))]
}

// addWaiter 注册一个等待者
func (b *Buffer[T]) addWaiter(w chan struct{}) {
	b.wakerLock.Lock()
	b.waiters = append(b.waiters, w)
	b.wakerLock.Unlock()
}

// wakeAll 唤醒并清空全部等待者
func (b *Buffer[T]) wakeAll() {
	b.wakerLock.Lock()
	for _, w := range b.waiters {
		close(w)
	}
	b.waiters = nil
	b.wakerLock.Unlock()
}
