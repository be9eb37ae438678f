package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/milk9111/physsync/common"
	"github.com/milk9111/physsync/record"
)

func runReplay(cmd *cobra.Command, args []string) error {
	rec, err := record.Open(args[0])
	if err != nil {
		return err
	}
	defer rec.Close()

	n, err := rec.Frames()
	if err != nil {
		return err
	}
	bodies, err := rec.Bodies()
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s: %d frames", args[0], n)))
	if replayFrame >= 0 {
		return printSnapshot(rec, replayFrame)
	}
	if replayBody == "" {
		fmt.Println(mutedStyle.Render("bodies: " + strings.Join(bodies, ", ")))
		return nil
	}

	trace, err := rec.Trace(replayBody)
	if err != nil {
		return err
	}
	if len(trace) == 0 {
		return fmt.Errorf("no samples for body %q", replayBody)
	}
	xs := make([]float64, len(trace))
	ys := make([]float64, len(trace))
	speeds := make([]float64, len(trace))
	contacts := 0
	for i, s := range trace {
		xs[i], ys[i] = s.Pose.X, s.Pose.Y
		speeds[i] = float64(s.LinearSpeed)
		if s.Contacts > 0 {
			contacts++
		}
	}

	fmt.Println(asciigraph.PlotMany([][]float64{xs, ys},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(replayBody+" position (x, y)"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(speeds,
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption(replayBody+" speed"),
	))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("frames %d-%d, in contact for %d", trace[0].Frame, trace[len(trace)-1].Frame, contacts)))
	return nil
}

// printSnapshot dumps the occupied slots of a stored buffer. Slots are shown
// by index since the snapshot carries no ids.
func printSnapshot(rec *record.Recorder, frame int64) error {
	buf, err := rec.Snapshot(frame)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tX\tY\tZ\tANGLE\tSPEED\tSPIN\tPARTNERS")
	var partners []int32
	for slot := 0; slot < buf.Capacity(); slot++ {
		m := buf.Matrix(slot)
		if m == (mgl32.Mat4{}) {
			continue
		}
		p := common.PoseFromMatrix(m)
		partners = buf.Collisions(slot, partners[:0])
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%v\n",
			slot, p.X, p.Y, m[14], p.Angle, buf.LinearSpeed(slot), buf.AngularSpeed(slot), partners)
	}
	return tw.Flush()
}
