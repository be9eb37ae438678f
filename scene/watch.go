package scene

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reload is the outcome of re-reading a watched scene. Changed is the file
// that triggered it; Err is set when the scene no longer loads or the
// watcher failed.
type Reload struct {
	Changed string
	Scene   *Scene
	Err     error
}

// Watcher follows one scene file and the driver scripts it names, and
// reloads the scene once writes have settled.
type Watcher struct {
	fs      *fsnotify.Watcher
	path    string
	files   map[string]bool
	settle  time.Duration
	Reloads chan Reload

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Watch loads the scene at path and starts following it. The scene must be
// on disk.
func Watch(path string) (*Watcher, *Scene, error) {
	sc, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	if sc.dir == "" {
		return nil, nil, ErrNotOnDisk
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := fsw.Add(sc.dir); err != nil {
		_ = fsw.Close()
		return nil, nil, err
	}

	w := &Watcher{
		fs:      fsw,
		path:    path,
		settle:  100 * time.Millisecond,
		Reloads: make(chan Reload, 4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.track(sc)
	go w.run()
	return w, sc, nil
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.fs.Close()
		<-w.done
		close(w.Reloads)
	})
	return err
}

// track records the base names that belong to sc. Scripts are resolved
// next to the scene first, which is the only directory watched.
func (w *Watcher) track(sc *Scene) {
	w.files = map[string]bool{filepath.Base(w.path): true}
	for _, b := range sc.Bodies {
		if b.Driver != "" {
			w.files[filepath.Base(b.Driver)] = true
		}
	}
}

func (w *Watcher) run() {
	defer close(w.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	changed := ""
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.files[filepath.Base(ev.Name)] {
				continue
			}
			changed = ev.Name
			timer.Reset(w.settle)
		case <-timer.C:
			sc, err := Load(w.path)
			if err == nil {
				w.track(sc)
			}
			if !w.send(Reload{Changed: changed, Scene: sc, Err: err}) {
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if !w.send(Reload{Err: err}) {
				return
			}
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) send(r Reload) bool {
	select {
	case w.Reloads <- r:
		return true
	case <-w.stop:
		return false
	}
}
