package ratelimit

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock 便于在测试里推进时间
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(limit, burst int64) (*Limiter, *fakeClock) {
	l := New(60, limit, burst)
	// 从窗口中间开始，避免碰巧压在边界上
	clock := &fakeClock{now: time.Unix(1700000010, 0)}
	l.nowFunc = func() time.Time { return clock.now }
	return l, clock
}

func TestCheckLimitWithoutBurst(t *testing.T) {
	l, _ := newTestLimiter(10, 0)

	// limit=10 burst=0 时，同一窗口内第 11 个请求被限流
	for i := 0; i < 10; i++ {
		d := l.Check("1.2.3.4")
		assert.True(t, d.Allowed, "第 %d 个请求应放行", i+1)
	}
	d := l.Check("1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0), "限流响应必须带正的重试提示")
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestCheckBurstAllowance(t *testing.T) {
	l, _ := newTestLimiter(10, 2)

	// 突发额度叠加在窗口配额之上
	for i := 0; i < 12; i++ {
		assert.True(t, l.Check("1.2.3.4").Allowed)
	}
	assert.False(t, l.Check("1.2.3.4").Allowed)
}

func TestCheckWindowReset(t *testing.T) {
	l, clock := newTestLimiter(2, 0)

	assert.True(t, l.Check("a").Allowed)
	assert.True(t, l.Check("a").Allowed)
	assert.False(t, l.Check("a").Allowed)

	// 跨过墙钟边界后窗口整体重置
	clock.advance(time.Minute)
	assert.True(t, l.Check("a").Allowed)
}

func TestCheckIdentitiesIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 0)

	assert.True(t, l.Check("a").Allowed)
	assert.False(t, l.Check("a").Allowed)
	// 另一个标识不受影响
	assert.True(t, l.Check("b").Allowed)
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	l, clock := newTestLimiter(10, 0)

	l.Check("idle")
	l.Check("active")

	// 空闲超过 3 个窗口后被回收，活跃的保留
	clock.advance(4 * time.Minute)
	l.Check("active")
	l.sweep(clock.now)

	_, idleExists := l.entries.Load("idle")
	_, activeExists := l.entries.Load("active")
	assert.False(t, idleExists, "空闲条目应被回收")
	assert.True(t, activeExists)
}

func TestCheckConcurrent(t *testing.T) {
	l, _ := newTestLimiter(100, 0)

	done := make(chan int, 8)
	for w := 0; w < 8; w++ {
		go func(w int) {
			allowed := 0
			for i := 0; i < 50; i++ {
				if l.Check(fmt.Sprintf("client-%d", w%4)).Allowed {
					allowed++
				}
			}
			done <- allowed
		}(w)
	}
	total := 0
	for w := 0; w < 8; w++ {
		total += <-done
	}
	// 4 个标识、每个配额 100：总放行数恰为 400
	assert.Equal(t, 400, total)
}

func TestIdentityResolutionOrder(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/shorten", nil)
	r.RemoteAddr = "192.0.2.1:4321"

	assert.Equal(t, "192.0.2.1", Identity(r), "无代理头时用直连地址")

	r.Header.Set("Forwarded", `for=198.51.100.7;proto=https`)
	assert.Equal(t, "198.51.100.7", Identity(r))

	r.Header.Set("X-Real-IP", "198.51.100.8")
	assert.Equal(t, "198.51.100.8", Identity(r), "X-Real-IP 优先于 Forwarded")

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 198.51.100.1")
	assert.Equal(t, "203.0.113.5", Identity(r), "X-Forwarded-For 首跳最优先")
}

func TestIdentityForwardedQuoted(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/shorten", nil)
	r.RemoteAddr = "192.0.2.1:4321"
	r.Header.Set("Forwarded", `for="[2001:db8::1]:8080", for=198.51.100.1`)
	assert.Equal(t, "2001:db8::1", Identity(r), "应取首跳并剥离端口与方括号")
}
