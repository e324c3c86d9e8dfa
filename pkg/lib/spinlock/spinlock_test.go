package spinlock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLock_TryLock 测试非阻塞加锁
func TestLock_TryLock(t *testing.T) {
	var l Lock

	require.True(t, l.TryLock(), "首次 TryLock 应当成功")
	require.False(t, l.TryLock(), "持锁期间 TryLock 应当失败")

	l.Unlock()
	require.True(t, l.TryLock(), "解锁后 TryLock 应当再次成功")
	l.Unlock()
}

// TestLock_LockUnlock 测试阻塞加锁
func TestLock_LockUnlock(t *testing.T) {
	var l Lock

	l.Lock()
	assert.False(t, l.TryLock())
	l.Unlock()

	// 可重复加解锁
	l.Lock()
	l.Unlock()
}

// TestLock_MutualExclusion 测试互斥性
//
// T 个 goroutine 并发抢锁，计数器只在持锁时递增，
// 任意时刻持锁者数量不得超过 1。
func TestLock_MutualExclusion(t *testing.T) {
	const (
		goroutines = 8
		rounds     = 1000
	)

	var (
		l       Lock
		inside  atomic.Int32
		total   atomic.Int64
		wg      sync.WaitGroup
		overlap atomic.Bool
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				l.Lock()
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				total.Add(1)
				inside.Add(-1)
				l.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "同一时刻存在多个持锁者")
	assert.Equal(t, int64(goroutines*rounds), total.Load())
}

// TestLock_TryLockConcurrent 测试并发 TryLock 至多一个成功
func TestLock_TryLockConcurrent(t *testing.T) {
	const goroutines = 16

	var (
		l       Lock
		start   sync.WaitGroup
		done    sync.WaitGroup
		success atomic.Int32
	)

	start.Add(1)
	for i := 0; i < goroutines; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			if l.TryLock() {
				success.Add(1)
			}
		}()
	}
	start.Done()
	done.Wait()

	assert.Equal(t, int32(1), success.Load(), "未持锁状态下恰好一个 TryLock 成功")
}

// TestLock_Visibility 测试锁内写入对下一个持锁者可见
func TestLock_Visibility(t *testing.T) {
	const rounds = 10000

	var (
		l      Lock
		shared int
		wg     sync.WaitGroup
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				l.Lock()
				shared++
				l.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4*rounds, shared)
}
