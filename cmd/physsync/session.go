package main

import (
	"fmt"
	"log"
	"time"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/config"
	"github.com/milk9111/physsync/consumer"
	"github.com/milk9111/physsync/driver"
	"github.com/milk9111/physsync/record"
	"github.com/milk9111/physsync/scene"
	"github.com/milk9111/physsync/worker"
)

type sessionOptions struct {
	configPath string
	preset     string
	transfer   bool
	debug      bool
	fps        int
	// realtime measures tick deltas with the wall clock instead of
	// advancing exactly one frame per tick.
	realtime   bool
	recordPath string
	logger     *log.Logger

	// snapshotEvery stores the raw buffer every n recorded frames.
	snapshotEvery int
}

// session is one scene running in a worker with an in-process consumer.
// step drives both sides from a single goroutine.
type session struct {
	scene   *scene.Scene
	cfg     *config.Config
	worker  *worker.Worker
	client  *consumer.Client
	drivers map[string]*driver.Driver
	rec     *record.Recorder
	logger  *log.Logger

	dt       float64
	snapshot int64
	frame    int64
	elapsed  float64
	rows     []record.Row
	lines    int
	failed   []string
}

func newSession(name string, o sessionOptions) (*session, error) {
	sc, err := scene.Load(name)
	if err != nil {
		return nil, err
	}
	return newSceneSession(sc, o)
}

func newSceneSession(sc *scene.Scene, o sessionOptions) (*session, error) {
	cfg, err := sessionConfig(sc, o)
	if err != nil {
		return nil, err
	}
	mode, err := buffer.ParseMode(cfg.Buffer.Mode)
	if err != nil {
		return nil, err
	}
	drivers, err := sc.Drivers()
	if err != nil {
		return nil, err
	}

	fps := o.fps
	if fps <= 0 {
		fps = 60
	}
	logger := o.logger
	if logger == nil {
		logger = log.Default()
	}
	s := &session{
		scene:    sc,
		cfg:      cfg,
		drivers:  drivers,
		logger:   logger,
		dt:       1 / float64(fps),
		snapshot: int64(o.snapshotEvery),
	}

	var init worker.Init
	switch mode {
	case buffer.ModeShared:
		init.Shared = buffer.NewShared(cfg.Buffer.MaxBodies)
		s.client = consumer.New(mode, init.Shared)
	case buffer.ModeTransfer:
		init.Transfer = buffer.New(cfg.Buffer.MaxBodies)
		s.client = consumer.New(mode, nil)
	}
	s.client.SetLogger(logger)

	opts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithEventHandler(s.handleEvent),
	}
	if !o.realtime {
		now := time.Unix(0, 0)
		step := time.Second / time.Duration(fps)
		opts = append(opts, worker.WithClock(func() time.Time {
			now = now.Add(step)
			return now
		}))
	}
	s.worker, err = worker.New(cfg, init, opts...)
	if err != nil {
		return nil, err
	}
	s.client.Attach(s.worker)

	if o.recordPath != "" {
		s.rec, err = record.Open(o.recordPath)
		if err != nil {
			return nil, err
		}
	}

	msgs, err := sc.Messages()
	if err != nil {
		s.close()
		return nil, err
	}
	for _, m := range msgs {
		s.worker.Post(m)
	}
	logger.Printf("Session: %s loaded, %d bodies, %s mode", sc.Name, len(sc.Bodies), mode)
	return s, nil
}

func sessionConfig(sc *scene.Scene, o sessionOptions) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for _, p := range []string{sc.Preset, o.preset} {
		if p != "" && !config.Apply(cfg, p) {
			return nil, fmt.Errorf("unknown preset %q", p)
		}
	}
	if o.transfer {
		cfg.Buffer.Mode = buffer.ModeTransfer.String()
	}
	if o.debug {
		cfg.Debug.Enabled = true
	}
	return cfg, cfg.Validate()
}

func (s *session) handleEvent(ev worker.Event) {
	s.client.HandleEvent(ev)
	switch e := ev.(type) {
	case worker.EventBodyFailed:
		s.failed = append(s.failed, fmt.Sprintf("%s: %v", e.ID, e.Err))
	case worker.EventRequestFailed:
		s.failed = append(s.failed, fmt.Sprintf("%s: %v", e.Message.Type(), e.Err))
	}
}

// step runs one simulation tick and, if a frame was published, one consumer
// frame: read the bodies, record them, and write driven transforms back.
func (s *session) step() error {
	s.worker.RunOnce()

	var frameErr error
	ran, err := s.client.Frame(func(buf *buffer.Buffer) {
		s.rows = record.Rows(buf, s.client.Bodies())
		if s.rec != nil {
			if err := s.rec.WriteFrame(s.frame, s.rows); err != nil {
				frameErr = err
			}
			if s.snapshot > 0 && s.frame%s.snapshot == 0 {
				if err := s.rec.WriteSnapshot(s.frame, buf); err != nil {
					frameErr = err
				}
			}
		}
		s.elapsed += s.dt
		for id, d := range s.drivers {
			m, err := d.Eval(s.elapsed, s.dt)
			if err != nil {
				frameErr = err
				continue
			}
			if err := s.client.WriteTransform(buf, id, m); err != nil {
				s.logger.Printf("Session: drive %s: %v", id, err)
			}
		}
	})
	if err != nil {
		return err
	}
	if ran {
		s.frame++
		if db := s.worker.DebugBuffer(); db != nil {
			s.lines = db.Count() / 2
		}
	}
	return frameErr
}

// row returns the last published row of a body.
func (s *session) row(id string) (record.Row, bool) {
	for _, r := range s.rows {
		if r.Body == id {
			return r, true
		}
	}
	return record.Row{}, false
}

func (s *session) close() error {
	if s.rec != nil {
		return s.rec.Close()
	}
	return nil
}
