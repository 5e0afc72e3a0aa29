package milvus

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/domain/repository"
)

// Index 远端 Milvus 集合的向量索引适配器
// 大规模部署时替代进程内索引；内存驻留在 Milvus 侧，不占本地预算
type Index struct {
	client  *Client
	horizon int
	dim     int
	size    int
}

var _ repository.VectorIndex = (*Index)(nil)

// NewIndex 绑定 horizon 对应的集合并加载到 Milvus 内存
func NewIndex(ctx context.Context, client *Client, horizon, dim int) (*Index, error) {
	has, err := client.HasCollection(ctx, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection for horizon %dh: %w", horizon, err)
	}
	if !has {
		return nil, fmt.Errorf("collection for horizon %dh does not exist", horizon)
	}
	if err := client.LoadCollection(ctx, horizon); err != nil {
		return nil, fmt.Errorf("failed to load collection for horizon %dh: %w", horizon, err)
	}

	size, err := rowCount(ctx, client, horizon)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("collection for horizon %dh is empty", horizon)
	}

	return &Index{
		client:  client,
		horizon: horizon,
		dim:     dim,
		size:    size,
	}, nil
}

// rowCount 读取集合统计中的行数
func rowCount(ctx context.Context, client *Client, horizon int) (int, error) {
	stats, err := client.milvus.GetCollectionStatistics(ctx, client.CollectionName(horizon))
	if err != nil {
		return 0, fmt.Errorf("failed to read collection statistics: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Search 查询 horizon 集合的 k 近邻
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]entity.Neighbor, error) {
	if len(query) != i.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), i.dim)
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.Int("horizon", i.horizon),
			attribute.Int("top_k", k),
		))
	defer span.End()

	sp, err := milvusentity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := i.client.milvus.Search(ctx,
		i.client.CollectionName(i.horizon),
		nil,
		"",
		[]string{"identifier"},
		[]milvusentity.Vector{milvusentity.FloatVector(query)},
		"vector",
		milvusentity.COSINE,
		k,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var neighbors []entity.Neighbor
	for _, result := range results {
		idCol, ok := result.Fields.GetColumn("identifier").(*milvusentity.ColumnVarChar)
		if !ok {
			return nil, fmt.Errorf("collection missing identifier column")
		}
		for j := 0; j < result.ResultCount; j++ {
			// COSINE 度量下 score 为相似度，换算为距离保持统一排序键
			neighbors = append(neighbors, entity.Neighbor{
				Identifier: idCol.Data()[j],
				Distance:   1 - float64(result.Scores[j]),
			})
		}
	}

	// 远端返回顺序不作假设，本地强制非递减
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].Distance < neighbors[b].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	span.SetAttributes(attribute.Int("result_count", len(neighbors)))
	return neighbors, nil
}

// Size 返回绑定时的行数快照
func (i *Index) Size() int {
	return i.size
}

// Dim 返回向量维度
func (i *Index) Dim() int {
	return i.dim
}

// Type 返回索引类型
func (i *Index) Type() entity.IndexType {
	return entity.IndexTypeMilvus
}

// SizeBytes 远端索引不占本地预算
func (i *Index) SizeBytes() int64 {
	return 0
}

// Close 连接由 Client 统一管理，这里无资源可释放
func (i *Index) Close() error {
	return nil
}
