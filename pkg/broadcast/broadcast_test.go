package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCtx 返回带超时的测试上下文，避免用例死等
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestBuffer_SingleReaderOrder 测试单读者按拉取顺序收到全部数据
func TestBuffer_SingleReaderOrder(t *testing.T) {
	const n = 100

	src := make(chan int, n)
	for i := 0; i < n; i++ {
		src <- i
	}

	buf := New(src)
	r := buf.Reader()

	ctx := testCtx(t)
	for i := 0; i < n; i++ {
		item, err := r.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, item)
	}

	// 追平写游标后必须等待
	_, ok, err := r.TryRecv()
	assert.False(t, ok)
	assert.NoError(t, err)
}

// TestBuffer_TwoReadersIdentical 测试生产前挂接的两个读者
// 观察到完全相同的顺序与内容，无重复
func TestBuffer_TwoReadersIdentical(t *testing.T) {
	const n = 50

	src := make(chan int, n)
	buf := New(src)
	r1 := buf.Reader()
	r2 := buf.Reader()

	for i := 0; i < n; i++ {
		src <- i
	}

	ctx := testCtx(t)
	var got1, got2 []int
	for i := 0; i < n; i++ {
		v1, err := r1.Recv(ctx)
		require.NoError(t, err)
		v2, err := r2.Recv(ctx)
		require.NoError(t, err)
		got1 = append(got1, v1)
		got2 = append(got2, v2)
	}

	assert.Equal(t, got1, got2)
	for i, v := range got1 {
		assert.Equal(t, i, v)
	}
}

// TestBuffer_CloneCatchUp 测试克隆读者只看到克隆之后产出的数据
func TestBuffer_CloneCatchUp(t *testing.T) {
	const k = 10

	src := make(chan int, 2*k)
	for i := 0; i < k; i++ {
		src <- i
	}

	buf := New(src)
	r1 := buf.Reader()

	ctx := testCtx(t)
	for i := 0; i < k; i++ {
		_, err := r1.Recv(ctx)
		require.NoError(t, err)
	}

	// 克隆发生在 K 条已提交之后：游标从当前写位置开始
	r2 := r1.Clone()
	_, ok, err := r2.TryRecv()
	require.False(t, ok, "克隆读者不应回放历史")
	require.NoError(t, err)

	for i := k; i < 2*k; i++ {
		src <- i
	}

	for i := k; i < 2*k; i++ {
		item, err := r2.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, item)
	}
}

// TestBuffer_RingOverwrite 测试落后超过容量时的静默覆盖
//
// 容量 4 的环被 8 条数据写穿一圈：游标还停在 0 的读者读到的
// 是覆盖后的槽位内容，没有任何丢失信号。
func TestBuffer_RingOverwrite(t *testing.T) {
	src := make(chan int, 8)
	for i := 0; i < 8; i++ {
		src <- i
	}

	buf := New(src, WithCapacity(4))
	r := buf.Reader()

	ctx := testCtx(t)
	var got []int
	for i := 0; i < 8; i++ {
		item, err := r.Recv(ctx)
		require.NoError(t, err)
		got = append(got, item)
	}

	// 首次 Recv 一次性拉满 8 条，槽位内容为 [4,5,6,7]
	assert.Equal(t, []int{4, 5, 6, 7, 4, 5, 6, 7}, got)
}

// TestBuffer_Repair 测试带外注入
func TestBuffer_Repair(t *testing.T) {
	buf := New[int](nil)
	r := buf.Reader()

	buf.Repair(42)

	item, err := r.Recv(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 42, item)
}

// TestBuffer_RepairWakesBlockedReader 测试 Repair 唤醒挂起的读者
func TestBuffer_RepairWakesBlockedReader(t *testing.T) {
	buf := New[int](nil)
	r := buf.Reader()

	done := make(chan int, 1)
	go func() {
		item, err := r.Recv(testCtx(t))
		if err == nil {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	buf.Repair(7)

	select {
	case item := <-done:
		assert.Equal(t, 7, item)
	case <-time.After(time.Second):
		t.Fatal("挂起的读者未被 Repair 唤醒")
	}
}

// TestBuffer_ClosedSource 测试底层序列结束后读者排空并收到 ErrClosed
func TestBuffer_ClosedSource(t *testing.T) {
	const n = 5

	src := make(chan int, n)
	for i := 0; i < n; i++ {
		src <- i
	}
	close(src)

	buf := New(src)
	r := buf.Reader()

	ctx := testCtx(t)
	for i := 0; i < n; i++ {
		item, err := r.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, item)
	}

	_, err := r.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestBuffer_CloseWakesBlockedReaders 测试 Close 唤醒全部挂起读者
func TestBuffer_CloseWakesBlockedReaders(t *testing.T) {
	buf := New[int](nil)

	const readers = 3
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		r := buf.Reader()
		go func() {
			_, err := r.Recv(testCtx(t))
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	buf.Close()

	for i := 0; i < readers; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("挂起的读者未被 Close 唤醒")
		}
	}
}

// TestBuffer_LateProducerWakesReader 测试空缓冲上挂起的读者
// 能在生产者稍后写入时被唤醒（看门人直接停靠在 channel 上）
func TestBuffer_LateProducerWakesReader(t *testing.T) {
	src := make(chan int, 1)
	buf := New(src)
	r := buf.Reader()

	done := make(chan int, 1)
	go func() {
		item, err := r.Recv(testCtx(t))
		if err == nil {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	src <- 99

	select {
	case item := <-done:
		assert.Equal(t, 99, item)
	case <-time.After(time.Second):
		t.Fatal("生产者写入后读者未被唤醒")
	}
}

// TestReader_ContextCancel 测试取消上下文让挂起的 Recv 返回
func TestReader_ContextCancel(t *testing.T) {
	buf := New[int](nil)
	r := buf.Reader()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Recv(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("取消后 Recv 未返回")
	}
}

// TestReader_CancelHandsOverGate 测试看门人取消后同伴接棒
//
// 停靠在 src 上的看门人退出后，其余挂起的读者必须被唤醒并
// 重新争抢门锁，否则后续写入 src 的数据再无人拉取。
func TestReader_CancelHandsOverGate(t *testing.T) {
	src := make(chan int, 1)
	buf := New(src)

	a := buf.Reader()
	b := buf.Reader()

	ctxA, cancelA := context.WithCancel(context.Background())
	aErr := make(chan error, 1)
	go func() {
		_, err := a.Recv(ctxA)
		aErr <- err
	}()

	// 先让 a 抢到门锁停靠在 src 上，b 随后挂起等待唤醒
	time.Sleep(20 * time.Millisecond)

	got := make(chan int, 1)
	go func() {
		item, err := b.Recv(testCtx(t))
		if err == nil {
			got <- item
		}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-aErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("取消后看门人未返回")
	}

	src <- 11

	select {
	case item := <-got:
		assert.Equal(t, 11, item)
	case <-time.After(time.Second):
		t.Fatal("看门人退出后数据滞留在 src，同伴未接棒")
	}
}

// TestBuffer_ConcurrentReaders 测试多读者并发消费：
// 每个读者独立看到完整且有序的序列
func TestBuffer_ConcurrentReaders(t *testing.T) {
	const (
		n       = 100
		readers = 4
	)

	src := make(chan int, n)
	buf := New(src)

	rs := make([]*Reader[int], readers)
	for i := range rs {
		rs[i] = buf.Reader()
	}

	go func() {
		for i := 0; i < n; i++ {
			src <- i
		}
	}()

	var wg sync.WaitGroup
	results := make([][]int, readers)
	for i, r := range rs {
		wg.Add(1)
		go func(idx int, r *Reader[int]) {
			defer wg.Done()
			ctx := testCtx(t)
			for j := 0; j < n; j++ {
				item, err := r.Recv(ctx)
				if err != nil {
					t.Errorf("读者 %d 第 %d 条失败: %v", idx, j, err)
					return
				}
				results[idx] = append(results[idx], item)
			}
		}(i, r)
	}
	wg.Wait()

	for i, got := range results {
		require.Len(t, got, n, "读者 %d", i)
		for j, v := range got {
			require.Equal(t, j, v, "读者 %d 第 %d 条", i, j)
		}
	}
}

// TestBuffer_WithCapacity 测试容量选项及最小值约束
func TestBuffer_WithCapacity(t *testing.T) {
	buf := New[int](nil, WithCapacity(16))
	assert.Len(t, buf.slots, 16)

	buf = New[int](nil, WithCapacity(0))
	assert.Len(t, buf.slots, minCapacity)

	buf = New[int](nil)
	assert.Len(t, buf.slots, DefaultCapacity)
}
