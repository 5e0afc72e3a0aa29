package vectorindex

import (
	"context"
	"fmt"
	"math"

	"analog-forecast-api/internal/domain/entity"
)

// QuantizedIndex int8 标量量化的近似索引，适合大规模 horizon
// 每条向量按自身最大分量缩放到 [-127, 127]，相似度取量化域余弦：
// 由 Cauchy-Schwarz 保证估计值落在 [-1, 1]，校验器的值域检查依赖这一点
// 召回率相对精确索引的下界是配置项，由测试验证而非假设
type QuantizedIndex struct {
	dim         int
	identifiers []string
	codes       []int8
	// norms 每条码字向量的 L2 范数，余弦归一化用
	norms []float32
}

// NewQuantizedIndex 从索引条目构建量化索引
func NewQuantizedIndex(entries []entity.IndexEntry, dim int) (*QuantizedIndex, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("quantized index requires at least one entry")
	}
	idx := &QuantizedIndex{
		dim:         dim,
		identifiers: make([]string, 0, len(entries)),
		codes:       make([]int8, 0, len(entries)*dim),
		norms:       make([]float32, 0, len(entries)),
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("entry %s has dimension %d, want %d", e.Identifier, len(e.Vector), dim)
		}
		if _, dup := seen[e.Identifier]; dup {
			return nil, fmt.Errorf("duplicate identifier %s", e.Identifier)
		}
		seen[e.Identifier] = struct{}{}
		codes := quantize(e.Vector)
		idx.identifiers = append(idx.identifiers, e.Identifier)
		idx.codes = append(idx.codes, codes...)
		idx.norms = append(idx.norms, codeNorm(codes))
	}
	return idx, nil
}

// quantize 将向量按最大分量缩放为 int8 码字
func quantize(v []float32) []int8 {
	var maxAbs float32
	for _, x := range v {
		if a := float32(math.Abs(float64(x))); a > maxAbs {
			maxAbs = a
		}
	}
	codes := make([]int8, len(v))
	if maxAbs == 0 {
		return codes
	}
	q := 127 / maxAbs
	for i, x := range v {
		c := math.Round(float64(x * q))
		if c > 127 {
			c = 127
		} else if c < -127 {
			c = -127
		}
		codes[i] = int8(c)
	}
	return codes
}

// codeNorm 计算码字向量的 L2 范数
func codeNorm(codes []int8) float32 {
	var acc int64
	for _, c := range codes {
		acc += int64(c) * int64(c)
	}
	return float32(math.Sqrt(float64(acc)))
}

// Search 在量化域近似检索距离最小的 k 条近邻
func (q *QuantizedIndex) Search(ctx context.Context, query []float32, k int) ([]entity.Neighbor, error) {
	if len(query) != q.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), q.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	// 捕获切片头：并发 Close（缓存淘汰）不影响进行中的扫描
	ids, codes, norms := q.identifiers, q.codes, q.norms
	if len(ids) == 0 {
		return nil, fmt.Errorf("index is closed")
	}
	if k > len(ids) {
		k = len(ids)
	}

	qCodes := quantize(query)
	qNorm := float64(codeNorm(qCodes))

	collector := newTopKCollector(k)
	for i, id := range ids {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := codes[i*q.dim : (i+1)*q.dim]
		var acc int32
		for j, c := range row {
			acc += int32(c) * int32(qCodes[j])
		}
		var sim float64
		if denom := float64(norms[i]) * qNorm; denom > 0 {
			sim = float64(acc) / denom
		}
		collector.offer(id, clampRounding64(1-sim), i)
	}
	return collector.drain(), nil
}

// Size 返回条目数
func (q *QuantizedIndex) Size() int {
	return len(q.identifiers)
}

// Dim 返回向量维度
func (q *QuantizedIndex) Dim() int {
	return q.dim
}

// Type 返回索引类型
func (q *QuantizedIndex) Type() entity.IndexType {
	return entity.IndexTypeQuantized
}

// SizeBytes 估计驻留内存占用
func (q *QuantizedIndex) SizeBytes() int64 {
	var ids int64
	for _, id := range q.identifiers {
		ids += int64(len(id)) + 16
	}
	return int64(len(q.codes)) + int64(len(q.norms))*4 + ids
}

// Close 释放码字块引用
func (q *QuantizedIndex) Close() error {
	q.codes = nil
	q.identifiers = nil
	q.norms = nil
	return nil
}
