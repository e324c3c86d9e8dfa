// Package timesource 提供喂给广播缓冲的定时事件源
//
// 事件源产出一个惰性的（可能无限的）时间戳序列，是
// broadcast.Buffer 的典型底层序列：
//
//	src := timesource.Interval(clock.New(), time.Second)
//	buf := broadcast.New(src.C())
//
// 时钟通过 benbjohnson/clock 注入，测试中可以用 mock 时钟
// 驱动时间前进。
package timesource

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Source 定时事件源
//
// C 返回的 channel 在 Stop 或序列自然结束后关闭，
// 下游的广播缓冲据此进入结束状态。
type Source struct {
	c    chan time.Time
	stop chan struct{}
	once sync.Once
}

// C 返回事件 channel
func (s *Source) C() <-chan time.Time {
	return s.c
}

// Stop 停止事件源并关闭 channel
//
// 可以多次调用。
func (s *Source) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
}

// Interval 创建周期事件源
//
// 立即产出当前时间一次，之后每隔 d 产出一次。序列无限，
// 只会因 Stop 而结束。
func Interval(clk clock.Clock, d time.Duration) *Source {
	s := &Source{
		c:    make(chan time.Time, 1),
		stop: make(chan struct{}),
	}

	go func() {
		defer close(s.c)

		ticker := clk.Ticker(d)
		defer ticker.Stop()

		// 首条立即产出
		select {
		case s.c <- clk.Now():
		case <-s.stop:
			return
		}

		for {
			select {
			case now := <-ticker.C:
				select {
				case s.c <- now:
				case <-s.stop:
					return
				}
			case <-s.stop:
				return
			}
		}
	}()

	return s
}

// Timeout 创建一次性事件源
//
// 等待 d 之后产出当前时间一次，随即结束序列。
func Timeout(clk clock.Clock, d time.Duration) *Source {
	s := &Source{
		c:    make(chan time.Time, 1),
		stop: make(chan struct{}),
	}

	go func() {
		defer close(s.c)

		timer := clk.Timer(d)
		defer timer.Stop()

		select {
		case now := <-timer.C:
			select {
			case s.c <- now:
			case <-s.stop:
			}
		case <-s.stop:
		}
	}()

	return s
}
