// Package repository 定义领域层对外部存储的最小依赖（port）
package repository

import (
	"context"

	"analog-forecast-api/internal/domain/entity"
)

// VectorIndex 单个 horizon 的向量索引
// 精确与近似实现共用同一接口，调用方对索引类型不敏感
// 查询期只读，实现必须支持并发 Search
type VectorIndex interface {
	// Search 返回按距离非递减排列的至多 k 条近邻
	Search(ctx context.Context, query []float32, k int) ([]entity.Neighbor, error)
	// Size 返回索引条目数
	Size() int
	// Dim 返回向量维度
	Dim() int
	// Type 返回索引实现类型
	Type() entity.IndexType
	// SizeBytes 返回驻留内存的估计字节数（预算登记用）
	SizeBytes() int64
	// Close 释放索引持有的资源
	Close() error
}

// IndexProvider 按 horizon 解析索引
// 由守护层（懒加载缓存或预载注册表）实现
type IndexProvider interface {
	Index(ctx context.Context, horizon int) (VectorIndex, error)
}
