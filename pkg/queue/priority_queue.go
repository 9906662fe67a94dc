package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/models"
)

// --- Priority Queue Implementation ---

// pqItem is a frontier entry plus the ordering keys used by the heap
type pqItem struct {
	entry *models.FrontierEntry
	rank  int    // 0 for articles, 1 for listings; articles drain first
	depth int    // Pagination depth; shallower listings first
	seq   uint64 // Insertion order, keeps equal-priority entries FIFO
	index int    // The index of the item in the heap (required by heap interface)
}

// frontierHeap implements heap.Interface
type frontierHeap []*pqItem

func (h frontierHeap) Len() int { return len(h) }

func (h frontierHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].seq < h[j].seq
}

func (h frontierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *frontierHeap) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// Frontier is the blocking, thread-safe crawl queue shared by all workers.
// Article entries are served before listing entries so extraction keeps pace
// with discovery; listings are served breadth-first by pagination depth.
type Frontier struct {
	h       frontierHeap
	mu      sync.Mutex
	cond    *sync.Cond // Signalled when an entry is added or the queue closes
	closed  bool
	nextSeq uint64
	log     *logrus.Entry
}

// NewFrontier creates an empty, open frontier
func NewFrontier(log *logrus.Entry) *Frontier {
	f := &Frontier{log: log}
	f.cond = sync.NewCond(&f.mu)
	heap.Init(&f.h)
	return f
}

// Add pushes an entry onto the queue.
// Returns false if the queue is already closed; the caller still owns any
// bookkeeping (e.g. a WaitGroup slot) reserved for the entry.
func (f *Frontier) Add(entry *models.FrontierEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.log.WithField("url", entry.URL).Debug("Dropping entry, frontier closed")
		return false
	}

	rank := 1
	if entry.Kind == models.PageKindArticle {
		rank = 0
	}
	heap.Push(&f.h, &pqItem{entry: entry, rank: rank, depth: entry.PageDepth, seq: f.nextSeq})
	f.nextSeq++
	f.cond.Signal()
	return true
}

// Pop retrieves and removes the highest priority entry.
// It blocks while the queue is empty and open; it returns nil, false once the
// queue is closed and drained.
func (f *Frontier) Pop() (*models.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.h) == 0 {
		if f.closed {
			return nil, false
		}
		f.cond.Wait()
	}

	item := heap.Pop(&f.h).(*pqItem)
	return item.entry, true
}

// Close marks the queue closed and wakes every waiting worker.
// Entries still queued remain poppable so the caller can release their bookkeeping.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}

// Len returns the number of queued entries
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.h)
}
