package engine

import "testing"

func TestTableLifecycle(t *testing.T) {
	var tab Table[string]
	a := tab.Insert("a")
	b := tab.Insert("b")
	if !a.Valid() || !b.Valid() || a == b {
		t.Fatalf("expected distinct valid handles, got %v %v", a, b)
	}
	if v, ok := tab.Get(a); !ok || v != "a" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := tab.Remove(a); !ok {
		t.Fatalf("remove should succeed")
	}
	if _, ok := tab.Remove(a); ok {
		t.Fatalf("double remove should fail")
	}

	c := tab.Insert("c")
	if c.Index() != a.Index() {
		t.Fatalf("expected row reuse, got index %d", c.Index())
	}
	if c.Generation() == a.Generation() {
		t.Fatalf("reused row must bump generation")
	}
	if tab.Alive(a) {
		t.Fatalf("stale handle resolved")
	}
	if tab.Len() != 2 {
		t.Fatalf("expected 2 live rows, got %d", tab.Len())
	}
}

func TestTableEachOrder(t *testing.T) {
	var tab Table[int]
	hs := make([]Handle, 0, 4)
	for i := 0; i < 4; i++ {
		hs = append(hs, tab.Insert(i))
	}
	tab.Remove(hs[1])

	var seen []int
	tab.Each(func(_ Handle, v int) bool {
		seen = append(seen, v)
		return true
	})
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("unexpected visit order %v", seen)
	}
}

func TestZeroHandle(t *testing.T) {
	var tab Table[int]
	if _, ok := tab.Get(0); ok {
		t.Fatalf("zero handle must not resolve")
	}
	var h Handle
	if h.Valid() {
		t.Fatalf("zero handle must be invalid")
	}
}
