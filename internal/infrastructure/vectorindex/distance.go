package vectorindex

import (
	"github.com/viant/vec/search"
)

// DistanceFunc 计算两个单位向量的余弦距离 (1 - cos)
// 两种实现对应守护层的两类执行路径
type DistanceFunc func(a, b []float32) float32

// SIMDDistance 使用向量化指令的加速路径
func SIMDDistance(a, b []float32) float32 {
	return clampRounding(search.Float32s(a).CosineDistance(b))
}

// ScalarDistance 纯标量回退路径
func ScalarDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return clampRounding(1 - dot)
}

// roundingEpsilon 单精度点积允许的负向舍入幅度
// 自匹配的点积在 float32 下可能略超 1，产出 -1e-7 量级的距离
const roundingEpsilon = 1e-5

// clampRounding 将亚 epsilon 的负舍入归零
// 超出该幅度的负值不是舍入噪声，原样保留交给校验层
func clampRounding(d float32) float32 {
	if d < 0 && d > -roundingEpsilon {
		return 0
	}
	return d
}

func clampRounding64(d float64) float64 {
	if d < 0 && d > -roundingEpsilon {
		return 0
	}
	return d
}
