package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/milk9111/physsync/config"
	"github.com/milk9111/physsync/scene"
)

func listScenes(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("scenes"))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range scene.List() {
		s, err := scene.Load(name)
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\n", name, errorStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintf(tw, "%s\t%d bodies\t%s\n", name, len(s.Bodies), s.Description)
	}
	tw.Flush()

	fmt.Println(titleStyle.Render("presets"))
	for _, p := range config.ListPresets() {
		fmt.Println("  " + p)
	}
	return nil
}
