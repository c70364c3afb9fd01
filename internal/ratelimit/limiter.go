package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// evictAfterWindows 空闲多少个窗口后条目可被回收
	evictAfterWindows = 3
	// sweepEvery 每多少次 Check 触发一次惰性回收
	sweepEvery = 256
)

// Decision 单次准入判定结果
type Decision struct {
	Allowed bool
	// RetryAfter 被限流时距当前窗口结束的时长，恒为正
	RetryAfter time.Duration
}

// Limiter 按客户端标识计数的固定窗口限流器
// 窗口按墙钟边界对齐整体重置，不做滑动。每个标识独立加锁，
// 互不相关的客户端之间不会互相串行。
type Limiter struct {
	window  time.Duration
	limit   int64
	burst   int64
	entries sync.Map // identity -> *windowEntry
	ops     atomic.Uint64
	nowFunc func() time.Time
}

type windowEntry struct {
	mu       sync.Mutex
	start    time.Time // 当前窗口起点（按墙钟对齐）
	count    int64
	lastSeen time.Time
}

// New 创建限流器；window 为窗口长度（秒），limit 为窗口内配额，
// burst 为窗口起始时一次性可透支的额度
func New(windowSeconds int, limit, burst int64) *Limiter {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	if limit <= 0 {
		limit = 10
	}
	if burst < 0 {
		burst = 0
	}
	return &Limiter{
		window:  time.Duration(windowSeconds) * time.Second,
		limit:   limit,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Check 对一次请求做准入判定
func (l *Limiter) Check(identity string) Decision {
	now := l.nowFunc()

	v, _ := l.entries.LoadOrStore(identity, &windowEntry{})
	e := v.(*windowEntry)

	e.mu.Lock()
	start := now.Truncate(l.window)
	if !e.start.Equal(start) {
		// 跨过墙钟边界，窗口整体重置
		e.start = start
		e.count = 0
	}
	e.lastSeen = now

	decision := Decision{}
	if e.count < l.limit+l.burst {
		e.count++
		decision.Allowed = true
	} else {
		decision.RetryAfter = e.start.Add(l.window).Sub(now)
		if decision.RetryAfter <= 0 {
			decision.RetryAfter = time.Second
		}
	}
	e.mu.Unlock()

	if n := l.ops.Add(1); n%sweepEvery == 0 {
		l.sweep(now)
	}
	return decision
}

// sweep 惰性清理长期不活跃的标识，约束内存占用
func (l *Limiter) sweep(now time.Time) {
	deadline := now.Add(-time.Duration(evictAfterWindows) * l.window)
	l.entries.Range(func(key, value any) bool {
		e := value.(*windowEntry)
		e.mu.Lock()
		idle := e.lastSeen.Before(deadline)
		e.mu.Unlock()
		if idle {
			l.entries.Delete(key)
		}
		return true
	})
}

// Identity 解析客户端标识，依次尝试 X-Forwarded-For 首跳、
// X-Real-IP、Forwarded 头，最后回退到直连地址
func Identity(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if first := strings.TrimSpace(strings.Split(v, ",")[0]); first != "" {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if v := r.Header.Get("Forwarded"); v != "" {
		if ip := parseForwardedFor(v); ip != "" {
			return ip
		}
	}
	return stripPort(r.RemoteAddr)
}

// parseForwardedFor 从 RFC 7239 Forwarded 头中取第一跳的 for 参数
func parseForwardedFor(v string) string {
	firstHop := strings.Split(v, ",")[0]
	for _, part := range strings.Split(firstHop, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], "for") {
			return stripPort(strings.Trim(kv[1], `"`))
		}
	}
	return ""
}

// stripPort 去掉地址里的端口部分，IPv6 同时去掉方括号
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
