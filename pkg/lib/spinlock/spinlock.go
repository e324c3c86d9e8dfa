// Package spinlock 提供基于原子标志的自旋锁
//
// 适用场景：临界区极短且有上界（O(1) 次操作）、希望避免
// 互斥锁带来的调度开销的热路径。临界区较长或竞争激烈时
// 应使用 sync.Mutex。
//
// 已知限制（刻意保留）：
//   - 不公平：唤醒顺序不确定，重度竞争下可能饿死某个调用方
//   - 不可重入：同一 goroutine 重复 Lock 会自旋死等
package spinlock

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Lock 自旋锁
//
// 零值即可使用。加锁使用 CAS，解锁使用原子写回 false。
// Go 的 sync/atomic 操作是顺序一致的，天然满足
// acquire/release 配对，锁内发布的数据对下一个持锁者可见。
type Lock struct {
	locked atomic.Bool
}

// 确保满足 sync.Locker 接口
var _ sync.Locker = (*Lock)(nil)

// TryLock 尝试加锁
//
// 单次 CAS，从不阻塞。返回 true 表示加锁成功。
func (l *Lock) TryLock() bool {
	return l.locked.CompareAndSwap(false, true)
}

// Lock 加锁
//
// 循环重试 TryLock，每次失败后让出当前线程（runtime.Gosched），
// 协作式自旋，无退避。
func (l *Lock) Lock() {
	for !l.TryLock() {
		runtime.Gosched()
	}
}

// Unlock 解锁
//
// 未持有锁时调用 Unlock 的行为未定义。
func (l *Lock) Unlock() {
	l.locked.Store(false)
}
