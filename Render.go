package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/environment/envconfig"
	"github.com/samuelfneumann/vlnav/render"
	"github.com/spf13/cobra"
)

var (
	graphFile  string
	pathFlag   string
	goalFlag   string
	outFile    string
	renderSize int
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Plot a path on a navigation graph",
	Long: `Draw the navigation graph of a connectivity file from above with
a path of comma separated viewpoint ids over it, and save the plot as a
PNG image. The goal defaults to the last viewpoint of the path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if graphFile == "" || pathFlag == "" {
			return errors.New("render: --graph and --path are required")
		}
		graphs, err := envconfig.LoadGraphs([]string{graphFile})
		if err != nil {
			return err
		}

		path := strings.Split(pathFlag, ",")
		for i := range path {
			path[i] = strings.TrimSpace(path[i])
		}
		goal := goalFlag
		if goal == "" {
			goal = path[len(path)-1]
		}

		opts := render.DefaultOptions()
		opts.Width, opts.Height = renderSize, renderSize
		if err := render.SavePNG(outFile, graphs[0], path, goal,
			opts); err != nil {
			return err
		}
		logger.Printf("wrote %v", outFile)
		return nil
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&graphFile, "graph", "", "connectivity file of the scan")
	f.StringVar(&pathFlag, "path", "", "comma separated viewpoint ids")
	f.StringVar(&goalFlag, "goal", "", "goal viewpoint id")
	f.StringVar(&outFile, "out", "path.png", "output PNG file")
	f.IntVar(&renderSize, "size", 512, "width and height in pixels")
}
