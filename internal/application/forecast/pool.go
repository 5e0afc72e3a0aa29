package forecast

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/metrics"
)

// HandlePool 按 horizon 限制并发检索句柄数
// 句柄用尽时排队等待，超过 acquireTimeout 返回 ErrPoolExhausted 而非无限阻塞
type HandlePool struct {
	mu             sync.Mutex
	sems           map[int]*semaphore.Weighted
	perHorizon     int64
	acquireTimeout time.Duration
}

// NewHandlePool 构造句柄池，perHorizon 为每个 horizon 的并发上限
func NewHandlePool(perHorizon int, acquireTimeout time.Duration) *HandlePool {
	return &HandlePool{
		sems:           make(map[int]*semaphore.Weighted),
		perHorizon:     int64(perHorizon),
		acquireTimeout: acquireTimeout,
	}
}

func (p *HandlePool) sem(horizon int) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sems[horizon]
	if !ok {
		s = semaphore.NewWeighted(p.perHorizon)
		p.sems[horizon] = s
	}
	return s
}

// Acquire 获取一个检索句柄，返回的函数归还句柄且可重复调用
func (p *HandlePool) Acquire(ctx context.Context, horizon int) (release func(), err error) {
	s := p.sem(horizon)
	label := strconv.Itoa(horizon)

	start := time.Now()
	waitCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	if err := s.Acquire(waitCtx, 1); err != nil {
		metrics.PoolWaitDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			// 调用方取消，不算句柄耗尽
			return nil, ctx.Err()
		}
		metrics.PoolExhaustions.WithLabelValues(label).Inc()
		return nil, errors.ErrPoolExhausted.WithDetailf("horizon=%d wait=%s", horizon, p.acquireTimeout)
	}
	metrics.PoolWaitDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() { s.Release(1) })
	}, nil
}
