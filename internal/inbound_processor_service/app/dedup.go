package app

import "sync"

// DefaultDedupCapacity bounds the ids remembered per poller.
const DefaultDedupCapacity = 1000

// DedupWindow remembers recently seen message ids. When it grows past its
// capacity the oldest half is forgotten.
type DedupWindow struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

func NewDedupWindow(capacity int) *DedupWindow {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupWindow{seen: make(map[string]struct{}), capacity: capacity}
}

func (d *DedupWindow) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Mark records id, evicting the oldest half of the window on overflow.
func (d *DedupWindow) Mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > d.capacity {
		evict := len(d.order) / 2
		for _, old := range d.order[:evict] {
			delete(d.seen, old)
		}
		d.order = append([]string(nil), d.order[evict:]...)
	}
}

func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
