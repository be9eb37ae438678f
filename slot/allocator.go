package slot

import "errors"

const (
	// End terminates the free list.
	End = -1
	// taken marks a slot that is currently handed out.
	taken = -2
)

var (
	ErrOutOfRange   = errors.New("slot: index out of range")
	ErrNotAllocated = errors.New("slot: index not allocated")
)

// Allocator hands out buffer slot indices from a fixed pool.
// The free list is embedded in next: next[i] is the slot after i, End when
// i is the last free slot, taken when i is live.
type Allocator struct {
	next []int
	head int
	live int
}

// New creates an allocator with every slot in [0, capacity) free.
func New(capacity int) *Allocator {
	if capacity < 0 {
		capacity = 0
	}
	a := &Allocator{next: make([]int, capacity)}
	for i := 0; i < capacity-1; i++ {
		a.next[i] = i + 1
	}
	if capacity > 0 {
		a.next[capacity-1] = End
		a.head = 0
	} else {
		a.head = End
	}
	return a
}

// Allocate pops the most recently released slot. It reports false when the
// pool is exhausted.
func (a *Allocator) Allocate() (int, bool) {
	if a == nil || a.head == End {
		return 0, false
	}
	i := a.head
	a.head = a.next[i]
	a.next[i] = taken
	a.live++
	return i, true
}

// Release returns slot i to the pool.
func (a *Allocator) Release(i int) error {
	if a == nil || i < 0 || i >= len(a.next) {
		return ErrOutOfRange
	}
	if a.next[i] != taken {
		return ErrNotAllocated
	}
	a.next[i] = a.head
	a.head = i
	a.live--
	return nil
}

// InUse reports whether slot i is currently allocated.
func (a *Allocator) InUse(i int) bool {
	if a == nil || i < 0 || i >= len(a.next) {
		return false
	}
	return a.next[i] == taken
}

func (a *Allocator) Cap() int {
	if a == nil {
		return 0
	}
	return len(a.next)
}

func (a *Allocator) Live() int {
	if a == nil {
		return 0
	}
	return a.live
}

func (a *Allocator) Free() int {
	return a.Cap() - a.Live()
}

// Walk visits the free list from head to tail. It stops early and returns
// false if fn does, or if the list is longer than the pool (a cycle).
func (a *Allocator) Walk(fn func(i int) bool) bool {
	if a == nil {
		return true
	}
	steps := 0
	for i := a.head; i != End; i = a.next[i] {
		if i < 0 || i >= len(a.next) || steps > len(a.next) {
			return false
		}
		steps++
		if !fn(i) {
			return false
		}
	}
	return true
}
