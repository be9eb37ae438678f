package engine

import "strconv"

// Handle is a generational reference to an engine object. The low 32 bits
// index a table row, the high 32 bits hold the row's generation when the
// handle was issued. The zero Handle is never issued.
type Handle uint64

const handleIndexBits = 32

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<handleIndexBits | uint64(index))
}

func (h Handle) Index() uint32 {
	return uint32(h)
}

func (h Handle) Generation() uint32 {
	return uint32(uint64(h) >> handleIndexBits)
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

func (h Handle) Valid() bool {
	return h > 0
}

// Table stores values behind generational handles. Destroyed rows bump their
// generation so stale handles stop resolving.
type Table[T any] struct {
	rows []row[T]
	free []uint32
	live int
}

type row[T any] struct {
	gen   uint32
	alive bool
	value T
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.rows = append(t.rows, row[T]{})
		idx = uint32(len(t.rows))
	}
	r := &t.rows[idx-1]
	r.alive = true
	r.value = v
	t.live++
	return makeHandle(idx, r.gen)
}

// Get resolves h.
func (t *Table[T]) Get(h Handle) (T, bool) {
	r := t.lookup(h)
	if r == nil {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Remove forgets h. It reports false for stale or unknown handles.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	r := t.lookup(h)
	if r == nil {
		var zero T
		return zero, false
	}
	v := r.value
	var zero T
	r.value = zero
	r.alive = false
	r.gen++
	t.free = append(t.free, h.Index())
	t.live--
	return v, true
}

func (t *Table[T]) Alive(h Handle) bool {
	return t.lookup(h) != nil
}

func (t *Table[T]) Len() int {
	return t.live
}

// Each visits live rows in index order until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	for i := range t.rows {
		r := &t.rows[i]
		if !r.alive {
			continue
		}
		if !fn(makeHandle(uint32(i+1), r.gen), r.value) {
			return
		}
	}
}

func (t *Table[T]) lookup(h Handle) *row[T] {
	if t == nil || !h.Valid() {
		return nil
	}
	idx := h.Index()
	if idx == 0 || int(idx) > len(t.rows) {
		return nil
	}
	r := &t.rows[idx-1]
	if !r.alive || r.gen != h.Generation() {
		return nil
	}
	return r
}
