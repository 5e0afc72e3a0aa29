package vectorindex

import (
	"container/heap"

	"analog-forecast-api/internal/domain/entity"
)

// candidate 带原始位置的候选项，位置用于稳定的并列裁决
type candidate struct {
	identifier string
	distance   float64
	position   int
}

// worse 判断 a 是否劣于 b；距离相同则后出现的条目劣于先出现的
func worse(a, b candidate) bool {
	if a.distance != b.distance {
		return a.distance > b.distance
	}
	return a.position > b.position
}

// maxHeap 容量为 k 的大顶堆，堆顶是当前最差候选
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topKCollector 流式收集距离最小的 k 个候选
type topKCollector struct {
	k    int
	heap maxHeap
}

func newTopKCollector(k int) *topKCollector {
	return &topKCollector{k: k, heap: make(maxHeap, 0, k)}
}

func (c *topKCollector) offer(identifier string, distance float64, position int) {
	cand := candidate{identifier: identifier, distance: distance, position: position}
	if len(c.heap) < c.k {
		heap.Push(&c.heap, cand)
		return
	}
	if worse(c.heap[0], cand) {
		c.heap[0] = cand
		heap.Fix(&c.heap, 0)
	}
}

// drain 弹出全部候选并按距离非递减返回
func (c *topKCollector) drain() []entity.Neighbor {
	n := len(c.heap)
	out := make([]entity.Neighbor, n)
	for i := n - 1; i >= 0; i-- {
		cand := heap.Pop(&c.heap).(candidate)
		out[i] = entity.Neighbor{Identifier: cand.identifier, Distance: cand.distance}
	}
	return out
}
