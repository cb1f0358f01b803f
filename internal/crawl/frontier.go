package crawl

import "github.com/sitelens/sitelens/internal/urlnorm"

// Frontier holds the breadth-first crawl state: a FIFO queue of pages
// awaiting a visit, the set of dedup keys ever discovered, and the set of
// keys whose content has been fetched. Discovered membership only grows; a
// key enters it at most once. Frontier is not safe for concurrent use; the
// engine owns it for the duration of one crawl.
type Frontier struct {
	queue      []urlnorm.NormalizedURL
	discovered map[string]struct{}
	order      []urlnorm.NormalizedURL
	visited    map[string]struct{}
}

// NewFrontier returns an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		discovered: make(map[string]struct{}),
		visited:    make(map[string]struct{}),
	}
}

// Discover enqueues u unless its dedup key has been seen before. It returns
// false for duplicates so the caller can account for them.
func (f *Frontier) Discover(u urlnorm.NormalizedURL) bool {
	if _, seen := f.discovered[u.Key]; seen {
		return false
	}
	f.discovered[u.Key] = struct{}{}
	f.order = append(f.order, u)
	f.queue = append(f.queue, u)
	return true
}

// Next pops the oldest queued URL. ok is false when the queue is empty.
func (f *Frontier) Next() (u urlnorm.NormalizedURL, ok bool) {
	if len(f.queue) == 0 {
		return urlnorm.NormalizedURL{}, false
	}
	u = f.queue[0]
	f.queue = f.queue[1:]
	return u, true
}

// Empty reports whether the queue has been exhausted.
func (f *Frontier) Empty() bool {
	return len(f.queue) == 0
}

// MarkVisited records that u's content was fetched. It returns false when u
// was already visited, making repeat pops idempotent.
func (f *Frontier) MarkVisited(u urlnorm.NormalizedURL) bool {
	if _, seen := f.visited[u.Key]; seen {
		return false
	}
	f.visited[u.Key] = struct{}{}
	return true
}

// Visited reports whether u's content was already fetched.
func (f *Frontier) Visited(u urlnorm.NormalizedURL) bool {
	_, seen := f.visited[u.Key]
	return seen
}

// VisitedCount returns the number of fetched pages.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// Discovered returns every URL ever enqueued, in discovery order.
func (f *Frontier) Discovered() []urlnorm.NormalizedURL {
	out := make([]urlnorm.NormalizedURL, len(f.order))
	copy(out, f.order)
	return out
}
