package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/milk9111/physsync/scene"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func runScene(cmd *cobra.Command, args []string) error {
	name := sceneArg(args)
	opts := sessionOptions{
		configPath: configFile,
		preset:     preset,
		transfer:   transfer,
		debug:      debugDraw,
		fps:        frameRate,
		recordPath: recordDB,

		snapshotEvery: snapEvery,
	}
	if !watch {
		sc, err := scene.Load(name)
		if err != nil {
			return err
		}
		return runOnce(sc, opts)
	}

	w, sc, err := scene.Watch(name)
	if err != nil {
		return fmt.Errorf("--watch: %w", err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := runOnce(sc, opts); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-w.Reloads:
			if !ok {
				return nil
			}
			if r.Err != nil {
				fmt.Println(errorStyle.Render(r.Err.Error()))
				continue
			}
			fmt.Println(mutedStyle.Render("changed: " + r.Changed))
			if err := runOnce(r.Scene, opts); err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
		}
	}
}

func runOnce(sc *scene.Scene, opts sessionOptions) error {
	s, err := newSceneSession(sc, opts)
	if err != nil {
		return err
	}
	defer s.close()

	var xs, ys []float64
	for s.frame < int64(frames) {
		if err := s.step(); err != nil {
			return err
		}
		if traceBody != "" {
			if r, ok := s.row(traceBody); ok {
				xs = append(xs, r.Pose.X)
				ys = append(ys, r.Pose.Y)
			}
		}
	}

	printSummary(s)
	if traceBody != "" {
		if len(xs) == 0 {
			return fmt.Errorf("body %q never published", traceBody)
		}
		fmt.Println(asciigraph.PlotMany([][]float64{xs, ys},
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s x and y over %d frames", traceBody, len(xs))),
		))
	}
	return nil
}

func printSummary(s *session) {
	stats := s.worker.Stats()
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s after %d frames (%.2fs)", s.scene.Name, s.frame, s.elapsed)))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("mode=%s ticks=%d skipped=%d applied=%d deferred=%d queued=%d",
		s.worker.Mode(), stats.Ticks, stats.Skipped, stats.Applied, stats.Deferred, stats.Queued)))
	if s.cfg.Debug.Enabled {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("debug lines=%d", s.lines)))
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tBODY\tX\tY\tANGLE\tSPEED\tSPIN\tCONTACTS")
	for _, r := range s.rows {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%d\n",
			r.Slot, r.Body, r.Pose.X, r.Pose.Y, r.Pose.Angle, r.LinearSpeed, r.AngularSpeed, r.Contacts)
	}
	tw.Flush()

	if len(s.failed) > 0 {
		fmt.Println(errorStyle.Render("failed: " + strings.Join(s.failed, "; ")))
	}
}
