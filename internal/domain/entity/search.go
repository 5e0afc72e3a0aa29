package entity

import "time"

// IndexType 索引实现类型
type IndexType string

const (
	IndexTypeFlat      IndexType = "flat"
	IndexTypeQuantized IndexType = "quantized"
	IndexTypeMilvus    IndexType = "milvus"
)

// Neighbor 一条近邻命中
// Distance = 1 - cosine 相似度，越小越相似
type Neighbor struct {
	Identifier string
	Distance   float64
}

// Similarity 返回余弦相似度
func (n Neighbor) Similarity() float64 {
	return 1 - n.Distance
}

// SearchResult k-NN 检索的原始结果
// Neighbors 按 Distance 非递减排列，rank 0 为最优匹配
type SearchResult struct {
	Horizon   int
	Neighbors []Neighbor
	Latency   time.Duration
	IndexType IndexType
	Device    string
}

// Len 返回命中数量
func (r *SearchResult) Len() int {
	return len(r.Neighbors)
}

// Similarities 返回按 rank 排列的相似度序列
func (r *SearchResult) Similarities() []float64 {
	out := make([]float64, len(r.Neighbors))
	for i, n := range r.Neighbors {
		out[i] = n.Similarity()
	}
	return out
}
