package broadcast

import "context"

// Reader 广播缓冲的独立读者
//
// 每个读者持有自己的读游标，按拉取顺序观察整个序列。
// 读者本身不是并发安全的：一个 Reader 同时只能被一个
// goroutine 使用，需要并发消费时为每个 goroutine Clone 一个。
//
// 落后超过缓冲容量时会被静默覆盖（见 Buffer 的说明）。
// 被套圈槽位的无锁读取与覆盖写入并发，对多字长的 T 可能
// 读到撕裂值；要求逐项完整读取的场景必须保证读者落后
// 不超过容量。
type Reader[T any] struct {
	buf    *Buffer[T]
	cursor uint64
}

// Clone 克隆读者
//
// 新读者的游标从缓冲的当前写位置开始（追赶语义），
// 而不是复制本读者的进度，也不会回放历史。
func (r *Reader[T]) Clone() *Reader[T] {
	return r.buf.Reader()
}

// TryRecv 非阻塞接收
//
// 返回 (item, true, nil) 表示取到一条；(zero, false, nil)
// 表示暂无数据；序列结束且读完后返回 ErrClosed。
func (r *Reader[T]) TryRecv() (T, bool, error) {
	item, ok, err := r.buf.poll(r.cursor)
	if ok {
		r.cursor++
	}
	return item, ok, err
}

// Recv 阻塞接收下一条数据
//
// 数据未就绪时挂起。抢到序列门锁的等待读者直接停靠在底层
// channel 上（channel 没有唤醒回调可登记，必须有一个读者
// 替序列守门），其余等待读者等待唤醒。ctx 取消时返回
// ctx.Err()；序列结束且缓冲读完后返回 ErrClosed。
func (r *Reader[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	b := r.buf

	for {
		if item, ok, err := r.TryRecv(); ok {
			return item, nil
		} else if err != nil {
			return zero, err
		}

		w := make(chan struct{})
		b.addWaiter(w)

		// 注册之后必须重查一次，否则会错过注册前发生的唤醒
		if item, ok, err := r.TryRecv(); ok {
			return item, nil
		} else if err != nil {
			return zero, err
		}

		if b.recvLock.TryLock() {
			// 本读者成为序列看门人：独占地阻塞在 src 上。
			// nil channel 的 case 永远不就绪，Repair/Close 仍可唤醒
			select {
			case <-w:
			case <-ctx.Done():
				b.recvLock.Unlock()
				// 看门人退场必须交接：唤醒同伴重新争抢门锁，
				// 否则其余挂起读者再无人替序列守门
				b.wakeAll()
				return zero, ctx.Err()
			case v, open := <-b.src:
				b.ingest(v, open)
			}
			b.recvLock.Unlock()
		} else {
			select {
			case <-w:
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}
}
