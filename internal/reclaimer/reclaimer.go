package reclaimer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store 回收器对存储层的最小依赖
type Store interface {
	DeleteExpired(ctx context.Context, now int64) (int64, error)
}

// Reclaimer 周期性物理删除过期链接的后台任务
// 单轮执行互斥：上一轮未结束时跳过本次 tick，不排队。任何一轮
// 失败只记日志，绝不拖垮进程。
type Reclaimer struct {
	store    Store
	interval time.Duration
	logger   *zap.SugaredLogger

	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool

	nowFunc func() time.Time
}

// New 创建回收器实例
func New(store Store, interval time.Duration, logger *zap.SugaredLogger) *Reclaimer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reclaimer{
		store:    store,
		interval: interval,
		logger:   logger.Named("reclaimer"),
		stopChan: make(chan struct{}),
		nowFunc:  time.Now,
	}
}

// Start 启动后台回收循环
func (r *Reclaimer) Start() {
	r.logger.Infof("过期清理任务已启动，周期 %s", r.interval)
	go r.loop()
}

// Stop 停止回收器，可安全多次调用
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.logger.Info("过期清理任务已停止")
	})
}

func (r *Reclaimer) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce()
		case <-r.stopChan:
			return
		}
	}
}

// RunOnce 同步执行一轮清理；上一轮仍在进行时直接跳过
// 导出以便测试用假时钟确定性地触发，而不是等真实定时器。
func (r *Reclaimer) RunOnce() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("上一轮清理尚未结束，跳过本次")
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := r.store.DeleteExpired(ctx, r.nowFunc().Unix())
	if err != nil {
		r.logger.Errorf("清理过期链接失败: %v", err)
		return
	}
	if count > 0 {
		r.logger.Infof("已清理 %d 条过期链接", count)
	}
}
