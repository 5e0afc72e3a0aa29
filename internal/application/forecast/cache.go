package forecast

import (
	"container/list"
	"context"
	"time"

	"analog-forecast-api/internal/domain/repository"
	"analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/logger"
	"analog-forecast-api/pkg/metrics"
)

// IndexLoader 按 horizon 加载一个索引实例
type IndexLoader func(ctx context.Context, horizon int) (repository.VectorIndex, error)

// IndexSizer 在加载前估算索引的驻留字节数，预算预登记用
type IndexSizer func(horizon int) (int64, error)

// cacheEntry 缓存槽位，ready 关闭前 index/err 不可读
type cacheEntry struct {
	horizon int
	elem    *list.Element
	ready   chan struct{}
	index   repository.VectorIndex
	permit  *Permit
	err     error
}

// LazyIndexCache horizon 索引的 LRU 缓存，实现 repository.IndexProvider
// 同一 horizon 的并发首次访问只触发一次加载，其余调用等待同一结果
// 加载前先按文件大小向预算登记，淘汰时先归还额度再关闭索引
type LazyIndexCache struct {
	mu       chanMutex
	entries  map[int]*cacheEntry
	order    *list.List
	capacity int

	loader      IndexLoader
	sizer       IndexSizer
	budget      *BudgetTracker
	loadTimeout time.Duration
}

// chanMutex 用带缓冲 channel 实现的互斥锁，便于在等待锁时尊重 ctx
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case <-m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() {
	m <- struct{}{}
}

// NewLazyIndexCache 构造 LRU 索引缓存
func NewLazyIndexCache(capacity int, loadTimeout time.Duration, budget *BudgetTracker, loader IndexLoader, sizer IndexSizer) *LazyIndexCache {
	return &LazyIndexCache{
		mu:          newChanMutex(),
		entries:     make(map[int]*cacheEntry),
		order:       list.New(),
		capacity:    capacity,
		loader:      loader,
		sizer:       sizer,
		budget:      budget,
		loadTimeout: loadTimeout,
	}
}

// Index 返回 horizon 对应的索引，缺失时惰性加载
func (c *LazyIndexCache) Index(ctx context.Context, horizon int) (repository.VectorIndex, error) {
	if err := c.mu.lock(ctx); err != nil {
		return nil, err
	}

	if e, ok := c.entries[horizon]; ok {
		c.order.MoveToFront(e.elem)
		c.mu.unlock()
		metrics.IndexCacheEvents.WithLabelValues("hit").Inc()
		return c.await(ctx, e)
	}

	metrics.IndexCacheEvents.WithLabelValues("miss").Inc()
	e := &cacheEntry{horizon: horizon, ready: make(chan struct{})}
	e.elem = c.order.PushFront(e)
	c.entries[horizon] = e
	c.evictLocked(ctx)
	c.mu.unlock()

	c.load(ctx, e)
	return c.await(ctx, e)
}

// await 等待条目加载完成或调用方取消
func (c *LazyIndexCache) await(ctx context.Context, e *cacheEntry) (repository.VectorIndex, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.index, nil
}

// load 执行实际加载并发布结果，失败条目从缓存移除
func (c *LazyIndexCache) load(ctx context.Context, e *cacheEntry) {
	idx, permit, err := c.doLoad(ctx, e.horizon)
	if err != nil {
		e.err = err
		close(e.ready)
		c.remove(e)
		return
	}
	e.index = idx
	e.permit = permit
	close(e.ready)
	metrics.IndexCacheEvents.WithLabelValues("load").Inc()
}

func (c *LazyIndexCache) doLoad(ctx context.Context, horizon int) (repository.VectorIndex, *Permit, error) {
	size, err := c.sizer(horizon)
	if err != nil {
		return nil, nil, errors.ErrIndexUnavailable.WithDetailf("horizon=%d: %v", horizon, err)
	}
	permit, err := c.budget.Acquire(size)
	if err != nil {
		return nil, nil, err
	}

	loadCtx := ctx
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, c.loadTimeout)
		defer cancel()
	}
	idx, err := c.loader(loadCtx, horizon)
	if err != nil {
		permit.Release()
		return nil, nil, err
	}
	return idx, permit, nil
}

// remove 将失败条目从缓存表和 LRU 链上摘除
func (c *LazyIndexCache) remove(e *cacheEntry) {
	if err := c.mu.lock(context.Background()); err != nil {
		return
	}
	defer c.mu.unlock()
	if cur, ok := c.entries[e.horizon]; ok && cur == e {
		delete(c.entries, e.horizon)
		c.order.Remove(e.elem)
	}
}

// evictLocked 超出容量时从链尾淘汰已就绪的条目，调用方持锁
func (c *LazyIndexCache) evictLocked(ctx context.Context) {
	for c.order.Len() > c.capacity {
		evicted := false
		for el := c.order.Back(); el != nil; el = el.Prev() {
			e := el.Value.(*cacheEntry)
			select {
			case <-e.ready:
			default:
				// 加载中的条目不淘汰
				continue
			}
			delete(c.entries, e.horizon)
			c.order.Remove(el)
			c.release(ctx, e)
			metrics.IndexCacheEvents.WithLabelValues("evict").Inc()
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// release 归还预算额度并关闭索引
func (c *LazyIndexCache) release(ctx context.Context, e *cacheEntry) {
	if e.permit != nil {
		e.permit.Release()
	}
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			logger.Warn(ctx, "index close failed", "horizon", e.horizon, "error", err)
		}
	}
}

// Close 释放全部缓存条目
func (c *LazyIndexCache) Close() error {
	ctx := context.Background()
	if err := c.mu.lock(ctx); err != nil {
		return err
	}
	defer c.mu.unlock()
	for _, e := range c.entries {
		select {
		case <-e.ready:
			c.release(ctx, e)
		default:
		}
	}
	c.entries = make(map[int]*cacheEntry)
	c.order.Init()
	return nil
}
