// Package flat provides an exact similarity index.
//
// Vectors live in one contiguous arena. A search scans the eligible prefix
// and keeps the k best candidates in a bounded max-heap, which costs
// O(N log k).
package flat

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/internal/queue"
	"github.com/hupe1980/reviewdb/model"
)

// Compile time check to ensure Index satisfies the index interface.
var _ index.SimilarityIndex = (*Index)(nil)

// cancelCheckInterval is how many vectors are scored between context checks.
const cancelCheckInterval = 4096

// Options contains configuration options for the flat index.
type Options struct {
	// InitialCapacity is the number of vectors to reserve space for.
	InitialCapacity int
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	InitialCapacity: 1024,
}

// Index is an exact brute-force index.
type Index struct {
	mu     sync.RWMutex
	dim    int
	metric distance.Metric
	arena  []float32
	norms  []float32 // populated for MetricCosine only
}

// New creates an empty flat index.
func New(dim int, metric distance.Metric, optFns ...func(o *Options)) (*Index, error) {
	if _, err := distance.Provider(metric); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("flat: dimension must be positive, got %d", dim)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	idx := &Index{
		dim:    dim,
		metric: metric,
		arena:  make([]float32, 0, max(opts.InitialCapacity, 0)*dim),
	}
	if metric == distance.MetricCosine {
		idx.norms = make([]float32, 0, max(opts.InitialCapacity, 0))
	}
	return idx, nil
}

// Factory returns an index.Factory producing flat indexes.
func Factory(optFns ...func(o *Options)) index.Factory {
	return func(dim int, metric distance.Metric) (index.SimilarityIndex, error) {
		return New(dim, metric, optFns...)
	}
}

// Add appends vec. ord must equal Len().
func (f *Index) Add(ord model.Ordinal, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := index.ValidateAdd(ord, vec, f.dim, len(f.arena)/f.dim); err != nil {
		return err
	}
	f.arena = append(f.arena, vec...)
	if f.metric == distance.MetricCosine {
		f.norms = append(f.norms, distance.Norm(vec))
	}
	return nil
}

// Search returns the k closest vectors among ordinals < limit.
func (f *Index) Search(ctx context.Context, query []float32, k int, limit uint64) ([]model.Hit, error) {
	if err := index.ValidateSearch(query, k, f.dim); err != nil {
		return nil, err
	}
	v := f.View()
	return v.Scan(ctx, v.Prepare(query), k, limit)
}

// Len returns the number of stored vectors.
func (f *Index) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.arena) / f.dim
}

// Dimension returns the vector dimension.
func (f *Index) Dimension() int { return f.dim }

// Metric returns the distance metric.
func (f *Index) Metric() distance.Metric { return f.metric }

// View returns an immutable view of the vectors stored so far. Later Adds
// are not visible through it.
func (f *Index) View() View {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return View{dim: f.dim, metric: f.metric, arena: f.arena, norms: f.norms}
}

// View is a read-only snapshot of a flat index.
type View struct {
	dim    int
	metric distance.Metric
	arena  []float32
	norms  []float32
}

// Query is a query vector prepared for repeated scoring.
type Query struct {
	vec  []float32
	norm float32
}

// Len returns the number of vectors in the view.
func (v View) Len() int {
	if v.dim == 0 {
		return 0
	}
	return len(v.arena) / v.dim
}

// Vector returns the stored vector at i. The slice must not be modified.
func (v View) Vector(i uint32) []float32 {
	off := int(i) * v.dim
	return v.arena[off : off+v.dim : off+v.dim]
}

// Prepare precomputes what scoring needs from q.
func (v View) Prepare(q []float32) Query {
	pq := Query{vec: q}
	if v.metric == distance.MetricCosine {
		pq.norm = distance.Norm(q)
	}
	return pq
}

// PrepareStored prepares the stored vector at i as a query.
func (v View) PrepareStored(i uint32) Query {
	pq := Query{vec: v.Vector(i)}
	if v.metric == distance.MetricCosine {
		pq.norm = v.norms[i]
	}
	return pq
}

// Distance returns the distance from q to the stored vector at i.
func (v View) Distance(q Query, i uint32) float32 {
	vec := v.Vector(i)
	switch v.metric {
	case distance.MetricCosine:
		return distance.CosineDistanceWithNorms(q.vec, vec, q.norm, v.norms[i])
	case distance.MetricDot:
		return distance.NegativeDot(q.vec, vec)
	default:
		return distance.SquaredL2(q.vec, vec)
	}
}

// Scan scores every vector below limit and returns the k closest, closest
// first with ties broken by the lower ordinal.
func (v View) Scan(ctx context.Context, q Query, k int, limit uint64) ([]model.Hit, error) {
	n := min(uint64(v.Len()), limit)
	if n == 0 {
		return []model.Hit{}, nil
	}

	top := queue.NewPriorityQueue(true, min(k, int(n)))
	for i := uint64(0); i < n; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		top.PushItemBounded(queue.Item{Node: model.Ordinal(i), Distance: v.Distance(q, uint32(i))}, k)
	}

	return ToHits(top.Sorted()), nil
}

// ToHits converts sorted queue items to hits.
func ToHits(items []queue.Item) []model.Hit {
	hits := make([]model.Hit, len(items))
	for i, it := range items {
		hits[i] = model.Hit{Ordinal: it.Node, Distance: it.Distance}
	}
	return hits
}
