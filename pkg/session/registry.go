package session

import "sync"

// registry is a slot list with a free list of removed indexes. Adding
// reuses a freed slot when one exists, so churn doesn't grow the list
// without bound; removing tombstones the slot. Iteration walks the full
// list in slot order, skipping tombstones, which makes removal during a
// notification pass safe for the callbacks that haven't run yet.
type registry[T any] struct {
	mu    sync.Mutex
	slots []*T
	free  []int
}

func (r *registry[T]) add(v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[id] = &v
		return id
	}

	r.slots = append(r.slots, &v)
	return len(r.slots) - 1
}

func (r *registry[T]) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.slots) || r.slots[id] == nil {
		return
	}
	r.slots[id] = nil
	r.free = append(r.free, id)
}

func (r *registry[T]) each(fn func(T)) {
	for i := 0; ; i++ {
		r.mu.Lock()
		if i >= len(r.slots) {
			r.mu.Unlock()
			return
		}
		v := r.slots[i]
		r.mu.Unlock()

		if v != nil {
			fn(*v)
		}
	}
}
