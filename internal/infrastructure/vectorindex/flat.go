package vectorindex

import (
	"context"
	"fmt"

	"analog-forecast-api/internal/domain/entity"
)

// FlatIndex 精确的全量扫描索引，适合中小规模 horizon
// 加载后只读，Search 可并发调用
type FlatIndex struct {
	dim         int
	identifiers []string
	// vectors 连续存放的行主序向量块，减少 GC 压力
	vectors  []float32
	distance DistanceFunc
	device   string
}

// NewFlatIndex 从索引条目构建精确索引
func NewFlatIndex(entries []entity.IndexEntry, dim int, distance DistanceFunc, device string) (*FlatIndex, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("flat index requires at least one entry")
	}
	if distance == nil {
		distance = ScalarDistance
	}
	idx := &FlatIndex{
		dim:         dim,
		identifiers: make([]string, 0, len(entries)),
		vectors:     make([]float32, 0, len(entries)*dim),
		distance:    distance,
		device:      device,
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
		idx.identifiers = append(idx.identifiers, e.Identifier)
		idx.vectors = append(idx.vectors, e.Vector...)
	}
	return idx, nil
}

// Search 全量扫描并返回距离最小的 k 条近邻
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]entity.Neighbor, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), f.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	// 捕获切片头：并发 Close（缓存淘汰）不影响进行中的扫描
	ids, vecs := f.identifiers, f.vectors
	if len(ids) == 0 {
		return nil, fmt.Errorf("index is closed")
	}
	if k > len(ids) {
		k = len(ids)
	}

	collector := newTopKCollector(k)
	for i, id := range ids {
		// 长扫描尊重取消信号，每 4096 行检查一次
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := vecs[i*f.dim : (i+1)*f.dim]
		collector.offer(id, float64(f.distance(query, row)), i)
	}
	return collector.drain(), nil
}

// Size 返回条目数
func (f *FlatIndex) Size() int {
	return len(f.identifiers)
}

// Dim 返回向量维度
func (f *FlatIndex) Dim() int {
	return f.dim
}

// Type 返回索引类型
func (f *FlatIndex) Type() entity.IndexType {
	return entity.IndexTypeFlat
}

// SizeBytes 估计驻留内存占用
func (f *FlatIndex) SizeBytes() int64 {
	var ids int64
	for _, id := range f.identifiers {
		ids += int64(len(id)) + 16
	}
	return int64(len(f.vectors))*4 + ids
}

// Close 释放向量块引用
func (f *FlatIndex) Close() error {
	f.vectors = nil
	f.identifiers = nil
	return nil
}
