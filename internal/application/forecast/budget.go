package forecast

import (
	"sync/atomic"

	apperrors "analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/metrics"
)

// BudgetTracker 进程内索引内存预算
// used 为原子计数，失败或取消的获取绝不留下残余登记
type BudgetTracker struct {
	limit    int64
	failFast bool
	used     atomic.Int64
}

// NewBudgetTracker 创建预算追踪器
func NewBudgetTracker(limitBytes int64, failFast bool) *BudgetTracker {
	return &BudgetTracker{limit: limitBytes, failFast: failFast}
}

// Acquire 在触碰任何索引字节之前登记预算
// 超限时快速失败，错误携带请求/占用/上限字节数
func (t *BudgetTracker) Acquire(bytes int64) (*Permit, error) {
	if bytes < 0 {
		bytes = 0
	}
	for {
		current := t.used.Load()
		next := current + bytes
		if next > t.limit && t.failFast {
			metrics.BudgetRejections.Inc()
			return nil, apperrors.New(apperrors.CodeBudgetExceeded, "memory budget exceeded").
				WithDetailf("requested=%d in_use=%d limit=%d", bytes, current, t.limit)
		}
		if t.used.CompareAndSwap(current, next) {
			metrics.BudgetUsageBytes.Set(float64(next))
			return &Permit{tracker: t, bytes: bytes}, nil
		}
	}
}

// Used 返回当前登记的字节数
func (t *BudgetTracker) Used() int64 {
	return t.used.Load()
}

// Limit 返回预算上限
func (t *BudgetTracker) Limit() int64 {
	return t.limit
}

// Permit 一次预算登记的凭据
// Release 幂等，所有退出路径（成功、错误、panic 恢复）都必须释放
type Permit struct {
	tracker  *BudgetTracker
	bytes    int64
	released atomic.Bool
}

// Bytes 返回凭据登记的字节数
func (p *Permit) Bytes() int64 {
	return p.bytes
}

// Release 归还预算登记
func (p *Permit) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	next := p.tracker.used.Add(-p.bytes)
	metrics.BudgetUsageBytes.Set(float64(next))
}
