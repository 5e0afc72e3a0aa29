package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/pkg/logger"
)

// ResultCache 预报结果缓存
// 仅缓存最终 ForecastResult：同一 (horizon, k, variables, 向量) 的重复查询
// 按规格是幂等的，命中返回与重新计算逐字节一致的结果
// 质量判定本身从不跨查询复用
type ResultCache struct {
	client *Client
	ttl    time.Duration
}

// NewResultCache 创建预报结果缓存
func NewResultCache(client *Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Key 构造缓存键：horizon + k + 变量集 + 查询向量摘要
func (c *ResultCache) Key(horizon, k int, variables []string, query []float32) string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(horizon))
	binary.LittleEndian.PutUint32(buf[4:], uint32(k))
	h.Write(buf[:])

	sorted := append([]string(nil), variables...)
	sort.Strings(sorted)
	for _, v := range sorted {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	for _, x := range query {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(x))
		h.Write(buf[:4])
	}
	return "forecast:" + hex.EncodeToString(h.Sum(nil))
}

// Get 查询缓存，未命中返回 (nil, nil)
func (c *ResultCache) Get(ctx context.Context, key string) (*entity.ForecastResult, error) {
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("result cache get: %w", err)
	}
	var result entity.ForecastResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// 缓存记录损坏按未命中处理，不影响请求
		logger.Warn(ctx, "corrupt forecast cache entry dropped", "key", key)
		return nil, nil
	}
	return &result, nil
}

// Put 写入缓存，失败只记录不阻断请求
func (c *ResultCache) Put(ctx context.Context, key string, result *entity.ForecastResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		logger.Warn(ctx, "failed to marshal forecast for cache", "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl); err != nil {
		logger.Warn(ctx, "failed to store forecast in cache", "error", err.Error())
	}
}
