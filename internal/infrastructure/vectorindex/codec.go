// Package vectorindex 提供基于索引文件的进程内向量索引实现
package vectorindex

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector 将 float32 向量编码为小端字节序 BLOB
func EncodeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// DecodeVector 将小端字节序 BLOB 解码为 float32 向量
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty vector blob")
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
