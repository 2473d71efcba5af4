// Package hnsw provides an approximate similarity index based on a
// hierarchical navigable small world graph.
//
// Vectors are stored in a flat arena that also serves exact scans: when the
// eligible prefix of a search is not larger than the search beam the graph
// is skipped and the result is exact. Node levels come from a seeded RNG, so
// identical insert sequences build identical graphs.
package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/reviewdb/distance"
	"github.com/hupe1980/reviewdb/index"
	"github.com/hupe1980/reviewdb/index/flat"
	"github.com/hupe1980/reviewdb/internal/queue"
	"github.com/hupe1980/reviewdb/model"
)

// Compile time check to ensure HNSW satisfies the index interface.
var _ index.SimilarityIndex = (*HNSW)(nil)

// maxLevel caps node levels.
const maxLevel = 16

// Options represents the options for configuring HNSW.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// Reasonable range for M is 2-100. The range M=12-48 is ok for most use cases.
	M int

	// EF specifies the size of the dynamic candidate list at query time.
	// Larger EF values improve recall at the cost of search time.
	EF int

	// EFConstruction is the candidate list size while inserting.
	EFConstruction int

	// Heuristic selects neighbours with the diversity heuristic instead of
	// plain nearest neighbours.
	Heuristic bool

	// Seed drives level assignment.
	Seed uint64
}

// DefaultOptions contains the default options.
var DefaultOptions = Options{
	M:              16,
	EF:             64,
	EFConstruction: 200,
	Heuristic:      true,
	Seed:           42,
}

type node struct {
	level int
	conns [][]uint32 // conns[l] are the neighbours on layer l
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	mu sync.RWMutex

	vectors *flat.Index
	nodes   []*node
	ep      uint32 // entry point, valid when nodes is non-empty
	top     int    // level of the entry point

	mmax  int     // max connections per node on layers above 0
	mmax0 int     // max connections on layer 0
	ml    float64 // level normalisation factor
	rng   *rand.Rand

	opts Options
}

// New creates an empty HNSW index.
func New(dim int, metric distance.Metric, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would result in division by zero: 1 / log(1)
		opts.M = 2
	}
	if opts.EF <= 0 {
		opts.EF = DefaultOptions.EF
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}

	vectors, err := flat.New(dim, metric)
	if err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}

	return &HNSW{
		vectors: vectors,
		mmax:    opts.M,
		mmax0:   2 * opts.M,
		ml:      1 / math.Log(float64(opts.M)),
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		opts:    opts,
	}, nil
}

// Factory returns an index.Factory producing HNSW indexes.
func Factory(optFns ...func(o *Options)) index.Factory {
	return func(dim int, metric distance.Metric) (index.SimilarityIndex, error) {
		return New(dim, metric, optFns...)
	}
}

// Len returns the number of stored vectors.
func (h *HNSW) Len() int { return h.vectors.Len() }

// Dimension returns the vector dimension.
func (h *HNSW) Dimension() int { return h.vectors.Dimension() }

// Metric returns the distance metric.
func (h *HNSW) Metric() distance.Metric { return h.vectors.Metric() }

func (h *HNSW) randomLevel() int {
	u := 1 - h.rng.Float64() // (0, 1]
	return min(int(math.Floor(-math.Log(u)*h.ml)), maxLevel)
}

// Add inserts vec into the graph. ord must equal Len().
func (h *HNSW) Add(ord model.Ordinal, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.vectors.Add(ord, vec); err != nil {
		return err
	}

	id := uint32(ord)
	n := &node{level: h.randomLevel()}
	n.conns = make([][]uint32, n.level+1)

	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, n)
		h.ep = id
		h.top = n.level
		return nil
	}

	view := h.vectors.View()
	q := view.PrepareStored(id)

	// Greedy descent through the layers above the new node.
	cur := queue.Item{Node: model.Ordinal(h.ep), Distance: view.Distance(q, h.ep)}
	for level := h.top; level > n.level; level-- {
		cur = h.greedy(view, q, cur, level)
	}

	for level := min(n.level, h.top); level >= 0; level-- {
		cands := h.searchLayer(view, q, cur, h.opts.EFConstruction, level, math.MaxUint64)
		n.conns[level] = h.selectNeighbours(view, cands, h.mmax)
		cur = cands[0]
	}

	h.nodes = append(h.nodes, n)

	// Link the neighbours back to the new node, making it reachable.
	for level := min(n.level, h.top); level >= 0; level-- {
		for _, nb := range n.conns[level] {
			h.link(view, nb, id, level)
		}
	}

	if n.level > h.top {
		h.ep = id
		h.top = n.level
	}
	return nil
}

// greedy walks layer level towards q and returns the closest node found.
func (h *HNSW) greedy(view flat.View, q flat.Query, cur queue.Item, level int) queue.Item {
	for changed := true; changed; {
		changed = false
		for _, nb := range h.nodes[cur.Node].conns[level] {
			cand := queue.Item{Node: model.Ordinal(nb), Distance: view.Distance(q, nb)}
			if queue.Closer(cand, cur) {
				cur = cand
				changed = true
			}
		}
	}
	return cur
}

// searchLayer runs a beam search of width ef on one layer and returns the
// closest eligible nodes, closest first. Nodes at or beyond limit are
// traversed but never returned.
func (h *HNSW) searchLayer(view flat.View, q flat.Query, ep queue.Item, ef, level int, limit uint64) []queue.Item {
	var visited bitset.BitSet
	visited.Set(uint(ep.Node))

	candidates := queue.NewPriorityQueue(false, ef)
	candidates.PushItem(ep)

	top := queue.NewPriorityQueue(true, ef)
	if uint64(ep.Node) < limit {
		top.PushItem(ep)
	}

	for candidates.Len() > 0 {
		c, _ := candidates.PopItem()
		if worst, ok := top.TopItem(); ok && top.Len() >= ef && queue.Closer(worst, c) {
			break
		}

		nd := h.nodes[c.Node]
		if level >= len(nd.conns) {
			continue
		}
		for _, nb := range nd.conns[level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			item := queue.Item{Node: model.Ordinal(nb), Distance: view.Distance(q, nb)}
			worst, ok := top.TopItem()
			if top.Len() < ef || !ok || queue.Closer(item, worst) {
				candidates.PushItem(item)
				if uint64(nb) < limit {
					top.PushItemBounded(item, ef)
				}
			}
		}
	}

	return top.Sorted()
}

// selectNeighbours picks up to m neighbours from cands (closest first).
func (h *HNSW) selectNeighbours(view flat.View, cands []queue.Item, m int) []uint32 {
	if len(cands) <= m || !h.opts.Heuristic {
		out := make([]uint32, 0, min(m, len(cands)))
		for _, c := range cands[:min(m, len(cands))] {
			out = append(out, uint32(c.Node))
		}
		return out
	}

	selected := make([]uint32, 0, m)
	var pruned []uint32

	for _, c := range cands {
		if len(selected) >= m {
			break
		}
		cq := view.PrepareStored(uint32(c.Node))
		keep := true
		for _, s := range selected {
			if view.Distance(cq, s) < c.Distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, uint32(c.Node))
		} else {
			pruned = append(pruned, uint32(c.Node))
		}
	}

	// Fill up with the closest pruned candidates.
	for _, p := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, p)
	}
	return selected
}

// link adds a directed edge from -> to on level, shrinking the neighbour
// list of from when it overflows.
func (h *HNSW) link(view flat.View, from, to uint32, level int) {
	maxConns := h.mmax
	if level == 0 {
		maxConns = h.mmax0
	}

	nd := h.nodes[from]
	nd.conns[level] = append(nd.conns[level], to)
	if len(nd.conns[level]) <= maxConns {
		return
	}

	q := view.PrepareStored(from)
	cands := make([]queue.Item, len(nd.conns[level]))
	for i, id := range nd.conns[level] {
		cands[i] = queue.Item{Node: model.Ordinal(id), Distance: view.Distance(q, id)}
	}
	slices.SortFunc(cands, compareItems)

	nd.conns[level] = h.selectNeighbours(view, cands, maxConns)
}

func compareItems(a, b queue.Item) int {
	switch {
	case queue.Closer(a, b):
		return -1
	case queue.Closer(b, a):
		return 1
	default:
		return 0
	}
}

// Search returns the k nearest neighbours of query among ordinals < limit.
func (h *HNSW) Search(ctx context.Context, query []float32, k int, limit uint64) ([]model.Hit, error) {
	if err := index.ValidateSearch(query, k, h.Dimension()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	view := h.vectors.View()
	q := view.Prepare(query)

	eligible := min(uint64(len(h.nodes)), limit)
	if eligible == 0 {
		return []model.Hit{}, nil
	}

	ef := max(h.opts.EF, k)
	if eligible <= uint64(ef) {
		return view.Scan(ctx, q, k, eligible)
	}

	cur := queue.Item{Node: model.Ordinal(h.ep), Distance: view.Distance(q, h.ep)}
	for level := h.top; level > 0; level-- {
		cur = h.greedy(view, q, cur, level)
	}

	items := h.searchLayer(view, q, cur, ef, 0, eligible)
	if len(items) > k {
		items = items[:k]
	}
	return flat.ToHits(items), nil
}
