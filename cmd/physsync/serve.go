package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/config"
	"github.com/milk9111/physsync/wire"
	"github.com/milk9111/physsync/worker"
)

// runServe speaks the worker protocol over stdio. The buffer travels inside
// transferData messages, so the handoff is always transfer mode.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if preset != "" && !config.Apply(cfg, preset) {
		return errors.New("unknown preset " + preset)
	}
	cfg.Buffer.Mode = buffer.ModeTransfer.String()
	if maxBodies > 0 {
		cfg.Buffer.MaxBodies = maxBodies
	}
	if cfg.Loop.Interval == 0 {
		cfg.Loop.Interval = time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	out := wire.NewWriter(os.Stdout)
	var mu sync.Mutex
	emit := func(ev worker.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := out.Write(ev); err != nil {
			logger.Printf("Serve: write %s: %v", ev.Type(), err)
		}
	}

	w, err := worker.New(cfg, worker.Init{Transfer: buffer.New(cfg.Buffer.MaxBodies)},
		worker.WithEventHandler(emit), worker.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		defer cancel()
		r := wire.NewReader(os.Stdin)
		for {
			msg, err := r.Next()
			switch {
			case err == nil:
				w.Post(msg)
			case errors.Is(err, io.EOF):
				return
			case errors.Is(err, wire.ErrMalformed), errors.Is(err, wire.ErrUnknownType):
				logger.Printf("Serve: %v", err)
			default:
				logger.Printf("Serve: read: %v", err)
				return
			}
		}
	}()

	return w.Run(ctx)
}
