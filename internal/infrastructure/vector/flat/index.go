package flat

import (
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// Index is an exact inner-product index over L2-normalized vectors, so scores
// are cosine similarities. Build and Search are both O(n·d).
type Index struct {
	dim     int
	vectors [][]float32
}

var _ domain.VectorIndex = (*Index)(nil)

type Builder struct{}

func NewBuilder() Builder {
	return Builder{}
}

func (Builder) Build(vectors [][]float32) (domain.VectorIndex, error) {
	return Build(vectors)
}

// Build copies and normalizes vectors. A zero vector stays zero.
func Build(vectors [][]float32) (*Index, error) {
	idx := &Index{vectors: make([][]float32, 0, len(vectors))}
	for i, v := range vectors {
		if i == 0 {
			idx.dim = len(v)
		}
		if len(v) != idx.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), idx.dim)
		}
		idx.vectors = append(idx.vectors, normalize(v))
	}
	return idx, nil
}

func (idx *Index) Len() int {
	return len(idx.vectors)
}

// Search returns up to k vector positions ordered by descending similarity.
// Ties keep insertion order. k is clamped to the number of indexed vectors.
func (idx *Index) Search(query []float32, k int) ([]int, error) {
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}
	if k <= 0 {
		return []int{}, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("query has dimension %d, want %d", len(query), idx.dim)
	}

	q := normalize(query)
	scores := make([]float32, len(idx.vectors))
	order := make([]int, len(idx.vectors))
	for i, v := range idx.vectors {
		scores[i] = dot(q, v)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order[:k], nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
