package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	preset     string
	transfer   bool
	debugDraw  bool
	frameRate  int
	frames     int
	recordDB   string
	traceBody  string
	watch      bool
	maxBodies  int
	replayBody string
	replayFrame int64
	snapEvery  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "physsync",
		Short:        "headless physics worker with a shared-buffer sync protocol",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "config preset to apply")

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a scene headless and print the final frame",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	runCmd.Flags().IntVar(&frames, "frames", 300, "frames to simulate")
	runCmd.Flags().IntVar(&frameRate, "fps", 60, "consumer frame rate")
	runCmd.Flags().BoolVar(&transfer, "transfer", false, "use transfer handoff instead of shared memory")
	runCmd.Flags().BoolVar(&debugDraw, "debug", false, "enable debug line drawing")
	runCmd.Flags().StringVar(&recordDB, "record", "", "record frames to a sqlite database")
	runCmd.Flags().IntVar(&snapEvery, "snapshot-every", 60, "store a raw buffer snapshot every n recorded frames (0 disables)")
	runCmd.Flags().StringVar(&traceBody, "trace", "", "plot the trajectory of a body")
	runCmd.Flags().BoolVar(&watch, "watch", false, "rerun when the scene file changes")

	liveCmd := &cobra.Command{
		Use:   "live [scene]",
		Short: "run a scene with a live slot view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")
	liveCmd.Flags().BoolVar(&transfer, "transfer", false, "use transfer handoff instead of shared memory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the worker protocol as JSON lines on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&maxBodies, "max-bodies", 256, "buffer capacity")

	replayCmd := &cobra.Command{
		Use:   "replay [db]",
		Short: "plot a recorded body trace",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	replayCmd.Flags().StringVar(&replayBody, "body", "", "body id to plot")
	replayCmd.Flags().Int64Var(&replayFrame, "frame", -1, "print the buffer snapshot stored for a frame")

	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "list embedded scenes and config presets",
		Args:  cobra.NoArgs,
		RunE:  listScenes,
	}

	rootCmd.AddCommand(runCmd, liveCmd, serveCmd, replayCmd, scenesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sceneArg(args []string) string {
	if len(args) == 0 {
		return "stack"
	}
	return args[0]
}
