package timesource

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsl99a/helium/pkg/broadcast"
)

// recvOne 在超时保护下从事件源读一条
func recvOne(t *testing.T, c <-chan time.Time) (time.Time, bool) {
	t.Helper()
	select {
	case v, ok := <-c:
		return v, ok
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件源产出超时")
		return time.Time{}, false
	}
}

// TestInterval_FirstTickImmediate 测试周期源的首条立即产出
func TestInterval_FirstTickImmediate(t *testing.T) {
	mock := clock.NewMock()
	s := Interval(mock, time.Second)
	defer s.Stop()

	_, ok := recvOne(t, s.C())
	require.True(t, ok, "未推进时钟也应立即产出首条")
}

// TestInterval_Ticks 测试周期源按间隔产出
func TestInterval_Ticks(t *testing.T) {
	mock := clock.NewMock()
	s := Interval(mock, time.Second)
	defer s.Stop()

	_, ok := recvOne(t, s.C())
	require.True(t, ok)

	// 等内部 goroutine 建好 ticker 再推进时钟
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)

	_, ok = recvOne(t, s.C())
	require.True(t, ok)
}

// TestInterval_Stop 测试停止后 channel 关闭
func TestInterval_Stop(t *testing.T) {
	mock := clock.NewMock()
	s := Interval(mock, time.Second)

	_, ok := recvOne(t, s.C())
	require.True(t, ok)

	s.Stop()
	s.Stop() // 幂等

	_, ok = recvOne(t, s.C())
	assert.False(t, ok, "Stop 后 channel 应当关闭")
}

// TestTimeout_SingleShot 测试一次性源只产出一条然后结束
func TestTimeout_SingleShot(t *testing.T) {
	mock := clock.NewMock()
	s := Timeout(mock, time.Second)
	defer s.Stop()

	select {
	case <-s.C():
		t.Fatal("时钟未推进不应产出")
	case <-time.After(50 * time.Millisecond):
	}

	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)

	_, ok := recvOne(t, s.C())
	require.True(t, ok)

	_, ok = recvOne(t, s.C())
	assert.False(t, ok, "一次性源产出后应当结束")
}

// TestSource_FeedsBroadcast 测试事件源接入广播缓冲：
// 读者收到一条后观察到序列结束
func TestSource_FeedsBroadcast(t *testing.T) {
	mock := clock.NewMock()
	s := Timeout(mock, time.Second)
	defer s.Stop()

	buf := broadcast.New(s.C())
	r := buf.Reader()

	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := r.Recv(ctx)
	require.NoError(t, err)

	_, err = r.Recv(ctx)
	assert.ErrorIs(t, err, broadcast.ErrClosed)
}
