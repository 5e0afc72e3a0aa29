// Package entity 提供领域实体定义
package entity

import (
	"fmt"
	"math"
	"time"
)

// NormTolerance 嵌入向量 L2 范数允许的偏差
// 名义容差为 1e-6，放宽到 1e-4 以吸收 float32 存储舍入
const NormTolerance = 1e-4

// Embedding 天气状态的定长归一化向量表示
// 由外部编码器产出，进入检索前必须通过 VerifyNormalized
type Embedding struct {
	Vector    []float32
	Horizon   int
	Timestamp time.Time
}

// Dim 返回向量维度
func (e *Embedding) Dim() int {
	return len(e.Vector)
}

// Norm 计算 L2 范数
func (e *Embedding) Norm() float64 {
	var sum float64
	for _, x := range e.Vector {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// VerifyNormalized 校验向量已归一化且不含非法值
// 在边界处强制执行，核心逻辑不做任何假设
func (e *Embedding) VerifyNormalized() error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	for i, x := range e.Vector {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	norm := e.Norm()
	if math.Abs(norm-1.0) > NormTolerance {
		return fmt.Errorf("embedding norm %.6f outside unit tolerance", norm)
	}
	return nil
}

// IndexEntry 索引内的一条向量记录
// 标识符在单个 horizon 内唯一；插入顺序不携带语义
type IndexEntry struct {
	Vector     []float32
	Identifier string
	SourceTime time.Time
}
