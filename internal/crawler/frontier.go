package crawler

import (
	"container/heap"
	"fmt"
)

// Strategy selects the order in which the frontier dispatches candidates.
type Strategy string

const (
	// StrategyBFS dispatches strictly level by level: every page at
	// depth d is dispatched and integrated before any page at depth d+1.
	StrategyBFS Strategy = "bfs"

	// StrategyDFS drains children before siblings.
	StrategyDFS Strategy = "dfs"

	// StrategyBestFirst dispatches by descending score, breaking ties
	// by discovery order.
	StrategyBestFirst Strategy = "best_first"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyBFS, StrategyDFS, StrategyBestFirst:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// FrontierItem is a candidate URL that passed admission and awaits
// dispatch to a fetch worker.
type FrontierItem struct {
	// URL is the canonicalized candidate URL.
	URL string

	// Depth is the tree depth this candidate will occupy.
	Depth int

	// ParentURL is the canonical URL of the page that discovered this
	// candidate. Empty for seeds.
	ParentURL string

	// Score orders candidates under the best-first strategy.
	// Higher scores dispatch first; the other strategies ignore it.
	Score float64

	// seq is the admission sequence number, the stable tie break for
	// equal scores.
	seq uint64
}

// Scorer assigns a best-first priority to a candidate at admission time.
type Scorer func(item *FrontierItem) float64

// DepthScorer is the default best-first scorer: 1/(1+depth), so shallow
// pages outrank deep ones and the crawl stays close to the seed.
func DepthScorer(item *FrontierItem) float64 {
	return 1 / float64(1+item.Depth)
}

// Frontier holds admitted candidates and hands them out in strategy
// order. Implementations are not safe for concurrent use: the engine's
// coordinating loop is the only caller, which is what keeps the
// dispatch-order guarantees cheap to provide.
type Frontier interface {
	// Push adds an admitted candidate.
	Push(item *FrontierItem)

	// Pop removes and returns the next dispatchable candidate.
	// ok is false when nothing is currently eligible, which for the
	// breadth-first frontier can mean "current level drained" rather
	// than "empty" — callers distinguish the two via Advance.
	Pop() (item *FrontierItem, ok bool)

	// Advance unlocks the next batch of deferred candidates.
	// Only the breadth-first frontier defers anything (the next depth
	// level, held back until the current one has fully drained); the
	// other strategies always return false.
	Advance() bool

	// Len counts queued candidates, including deferred ones.
	Len() int
}

// NewFrontier returns the frontier implementation for the strategy.
func NewFrontier(strategy Strategy) Frontier {
	switch strategy {
	case StrategyDFS:
		return &stackFrontier{}
	case StrategyBestFirst:
		return &priorityFrontier{}
	default:
		return &levelFrontier{}
	}
}

// levelFrontier is the breadth-first frontier: one queue for the level
// being dispatched, one for the level after it.
//
// Design decision: Two queues instead of a single FIFO because:
// 1. A plain FIFO only preserves level order when results integrate in
//    dispatch order, which concurrent workers do not guarantee
// 2. Holding the next level back until Advance gives the engine an
//    explicit barrier to drain in-flight work behind
// 3. Children are always exactly one level deeper than the page that
//    produced them, so two queues cover every push
type levelFrontier struct {
	// depth is the level currently being dispatched.
	depth int

	// current holds the candidates of the active level.
	current []*FrontierItem

	// next holds the candidates of level depth+1.
	next []*FrontierItem
}

func (f *levelFrontier) Push(item *FrontierItem) {
	if item.Depth > f.depth {
		f.next = append(f.next, item)
		return
	}
	f.current = append(f.current, item)
}

func (f *levelFrontier) Pop() (*FrontierItem, bool) {
	if len(f.current) == 0 {
		return nil, false
	}
	item := f.current[0]
	f.current = f.current[1:]
	return item, true
}

func (f *levelFrontier) Advance() bool {
	if len(f.next) == 0 {
		return false
	}
	f.depth = f.next[0].Depth
	f.current = f.next
	f.next = nil
	return true
}

func (f *levelFrontier) Len() int {
	return len(f.current) + len(f.next)
}

// stackFrontier is the depth-first frontier: last pushed, first popped.
type stackFrontier struct {
	items []*FrontierItem
}

func (f *stackFrontier) Push(item *FrontierItem) {
	f.items = append(f.items, item)
}

func (f *stackFrontier) Pop() (*FrontierItem, bool) {
	if len(f.items) == 0 {
		return nil, false
	}
	item := f.items[len(f.items)-1]
	f.items = f.items[:len(f.items)-1]
	return item, true
}

func (f *stackFrontier) Advance() bool { return false }

func (f *stackFrontier) Len() int { return len(f.items) }

// priorityFrontier is the best-first frontier: a max-heap on Score with
// discovery order as the stable tie break.
type priorityFrontier struct {
	heap itemHeap
	seq  uint64
}

func (f *priorityFrontier) Push(item *FrontierItem) {
	f.seq++
	item.seq = f.seq
	heap.Push(&f.heap, item)
}

func (f *priorityFrontier) Pop() (*FrontierItem, bool) {
	if len(f.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&f.heap).(*FrontierItem), true
}

func (f *priorityFrontier) Advance() bool { return false }

func (f *priorityFrontier) Len() int { return len(f.heap) }

// itemHeap implements heap.Interface ordered by descending Score, then
// ascending admission sequence.
type itemHeap []*FrontierItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(*FrontierItem))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
