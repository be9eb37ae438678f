package scene

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/worker"
)

func TestEmbeddedScenesLoad(t *testing.T) {
	names := List()
	if len(names) == 0 {
		t.Fatal("no embedded scenes")
	}
	for _, name := range names {
		s, err := Load(name)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		msgs, err := s.Messages()
		if err != nil {
			t.Fatalf("%s messages: %v", name, err)
		}
		if len(msgs) < len(s.Bodies) {
			t.Fatalf("%s: %d messages for %d bodies", name, len(msgs), len(s.Bodies))
		}
		if _, err := s.Drivers(); err != nil {
			t.Fatalf("%s drivers: %v", name, err)
		}
	}
}

func TestMessagesOrder(t *testing.T) {
	s, err := Parse([]byte(`
name: pair
bodies:
  - id: a
    type: static
    shapes:
      - type: box
        half_extents: [1, 1, 1]
  - id: b
    position: [0, 3, 0]
    velocity: [1, 0, 0]
    shapes:
      - type: sphere
        radius: 0.5
constraints:
  - id: j
    body: a
    target: b
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	msgs, err := s.Messages()
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	want := []string{"addBody", "addShapes", "addBody", "addShapes", "setLinearVelocity", "addConstraint"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if m.Type() != want[i] {
			t.Fatalf("message %d: got %s, want %s", i, m.Type(), want[i])
		}
	}

	add := msgs[2].(worker.AddBody)
	if add.Matrix[13] != 3 {
		t.Fatalf("expected y=3, got %v", add.Matrix[13])
	}
	shapes := msgs[1].(worker.AddShapes)
	if shapes.GroupID != "a-shape-0" {
		t.Fatalf("unexpected default group id %q", shapes.GroupID)
	}
	c := msgs[5].(worker.AddConstraint)
	if c.Options.Type != engine.ConstraintLock {
		t.Fatalf("expected default lock, got %s", c.Options.Type)
	}
	if got := s.BodyIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected body ids %v", got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate body", "bodies:\n  - id: a\n  - id: a\n"},
		{"missing id", "bodies:\n  - type: static\n"},
		{"bad body type", "bodies:\n  - id: a\n    type: floating\n"},
		{"bad shape type", "bodies:\n  - id: a\n    shapes:\n      - type: torus\n"},
		{"unknown target", "bodies:\n  - id: a\nconstraints:\n  - id: j\n    body: a\n    target: b\n"},
		{"self constraint", "bodies:\n  - id: a\nconstraints:\n  - id: j\n    body: a\n    target: a\n"},
		{"bad constraint type", "bodies:\n  - id: a\n  - id: b\nconstraints:\n  - id: j\n    type: weld\n    body: a\n    target: b\n"},
		{"negative mass", "bodies:\n  - id: a\n    mass: -1\n"},
		{"driver on dynamic", "bodies:\n  - id: a\n    driver: sweep.tengo\n"},
		{"unknown preset", "preset: lunar\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestPresetConfig(t *testing.T) {
	s, err := Load("overflow")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := s.Config().Buffer.MaxBodies; got != 4 {
		t.Fatalf("expected tiny preset, max bodies %d", got)
	}
}

func TestLoadFromDiskWithLocalScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.yaml")
	scene := "bodies:\n  - id: k\n    type: kinematic\n    driver: lift.tengo\n"
	if err := os.WriteFile(path, []byte(scene), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lift.tengo"), []byte("y := t * 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	drivers, err := s.Drivers()
	if err != nil {
		t.Fatalf("drivers: %v", err)
	}
	m, err := drivers["k"].Eval(1.5, 0)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if m[13] != 3 {
		t.Fatalf("expected y=3, got %v", m[13])
	}
}

func nextReload(t *testing.T, w *Watcher) Reload {
	t.Helper()
	select {
	case r := <-w.Reloads:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
		return Reload{}
	}
}

func TestWatcherReloadsScene(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.yaml")
	script := filepath.Join(dir, "lift.tengo")
	if err := os.WriteFile(script, []byte("y := t\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	body := "bodies:\n  - id: k\n    type: kinematic\n    driver: lift.tengo\n"
	if err := os.WriteFile(path, []byte("name: one\n"+body), 0o644); err != nil {
		t.Fatal(err)
	}

	w, sc, err := Watch(path)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()
	if sc.Name != "one" {
		t.Fatalf("initial scene %q", sc.Name)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("name: two\n"+body), 0o644); err != nil {
		t.Fatal(err)
	}
	r := nextReload(t, w)
	if r.Err != nil || r.Scene == nil || r.Scene.Name != "two" {
		t.Fatalf("expected scene two, got %+v", r)
	}
	if r.Changed != path {
		t.Fatalf("expected change in %s, got %s", path, r.Changed)
	}

	if err := os.WriteFile(script, []byte("y := t * 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := nextReload(t, w); r.Changed != script || r.Err != nil {
		t.Fatalf("expected reload for script, got %+v", r)
	}

	if err := os.WriteFile(path, []byte("bodies:\n  - id: a\n  - id: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := nextReload(t, w); !errors.Is(r.Err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %+v", r)
	}
}

func TestWatchNeedsFile(t *testing.T) {
	if _, _, err := Watch("stack"); !errors.Is(err, ErrNotOnDisk) {
		t.Fatalf("expected ErrNotOnDisk, got %v", err)
	}
}

func TestEmbeddedScenesRun(t *testing.T) {
	for _, name := range List() {
		t.Run(name, func(t *testing.T) {
			s, err := Load(name)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			cfg := s.Config()
			cfg.Buffer.MaxBodies = min(cfg.Buffer.MaxBodies, 64)
			region := buffer.NewShared(cfg.Buffer.MaxBodies)

			var failures []worker.Event
			w, err := worker.New(cfg, worker.Init{Shared: region}, worker.WithEventHandler(func(ev worker.Event) {
				switch ev.(type) {
				case worker.EventBodyFailed, worker.EventRequestFailed:
					failures = append(failures, ev)
				}
			}))
			if err != nil {
				t.Fatalf("worker: %v", err)
			}
			msgs, err := s.Messages()
			if err != nil {
				t.Fatalf("messages: %v", err)
			}
			for _, m := range msgs {
				w.Post(m)
			}
			for i := 0; i < 10; i++ {
				w.RunOnce()
				_ = region.ConsumerRelease()
			}

			wantFailures := 0
			if len(s.Bodies) > cfg.Buffer.MaxBodies {
				wantFailures = len(s.Bodies) - cfg.Buffer.MaxBodies
			}
			if len(failures) != wantFailures {
				t.Fatalf("expected %d failures, got %v", wantFailures, failures)
			}
			if err := w.Registry().CheckInvariants(); err != nil {
				t.Fatalf("invariants: %v", err)
			}
		})
	}
}
