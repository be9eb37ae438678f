package buffer

import (
	"errors"
	"sync"
	"testing"
)

func TestSharedHandoffAlternates(t *testing.T) {
	region := NewShared(2)
	h := NewSharedHandoff(region)

	if region.State() != StateUninitialized {
		t.Fatalf("fresh region should be uninitialized, got %s", region.State())
	}
	if region.ConsumerAcquire() {
		t.Fatalf("consumer must wait for the first frame")
	}

	buf, ok := h.Acquire()
	if !ok || buf != region.Payload() {
		t.Fatalf("simulation should own a fresh region")
	}
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if region.State() != StateReady {
		t.Fatalf("release should publish Ready, got %s", region.State())
	}
	if _, ok := h.Acquire(); ok {
		t.Fatalf("simulation must not acquire while the consumer holds the frame")
	}
	if !region.ConsumerAcquire() {
		t.Fatalf("consumer should see the frame")
	}
	if err := region.ConsumerRelease(); err != nil {
		t.Fatal(err)
	}
	if err := region.ConsumerRelease(); err == nil {
		t.Fatalf("second consumer release should fail")
	}
	if _, ok := h.Acquire(); !ok {
		t.Fatalf("simulation should reacquire after consume")
	}
}

func TestSharedReleaseWithoutAcquire(t *testing.T) {
	h := NewSharedHandoff(NewShared(1))
	if err := h.Release(); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestSharedHandoffConcurrent(t *testing.T) {
	const frames = 200
	region := NewShared(1)
	h := NewSharedHandoff(region)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 1; n <= frames; {
			buf, ok := h.Acquire()
			if !ok {
				continue
			}
			buf.SetSpeeds(0, float32(n), float32(n))
			if err := h.Release(); err != nil {
				t.Error(err)
				return
			}
			n++
		}
	}()

	last := float32(0)
	for last < frames {
		if !region.ConsumerAcquire() {
			continue
		}
		p := region.Payload()
		lin, ang := p.LinearSpeed(0), p.AngularSpeed(0)
		if lin != ang || lin != last+1 {
			t.Fatalf("torn or skipped frame: last=%v lin=%v ang=%v", last, lin, ang)
		}
		last = lin
		if err := region.ConsumerRelease(); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}

func TestTransferHandoff(t *testing.T) {
	var shipped []*Buffer
	initial := New(1)
	h := NewTransferHandoff(initial, func(b *Buffer) { shipped = append(shipped, b) })

	buf, ok := h.Acquire()
	if !ok || buf != initial {
		t.Fatalf("handoff should start holding the buffer")
	}
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if len(shipped) != 1 || shipped[0] != initial {
		t.Fatalf("release should ship the buffer")
	}
	if h.Held() {
		t.Fatalf("simulation must forget a shipped buffer")
	}
	if _, ok := h.Acquire(); ok {
		t.Fatalf("acquire must fail while the consumer holds the buffer")
	}
	if err := h.Release(); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
	if err := h.Receive(initial); err != nil {
		t.Fatal(err)
	}
	if err := h.Receive(New(1)); !errors.Is(err, ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
	if _, ok := h.Acquire(); !ok {
		t.Fatalf("acquire should succeed after receive")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"", ModeShared, false},
		{"shared", ModeShared, false},
		{"transfer", ModeTransfer, false},
		{"bogus", ModeShared, true},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.err || got != tc.want {
			t.Fatalf("ParseMode(%q) = %v, %v", tc.in, got, err)
		}
	}
}
