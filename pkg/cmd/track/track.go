package track

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/racesim-client/pkg/config"
	"github.com/mpapenbr/racesim-client/pkg/geometry"
	circuits "github.com/mpapenbr/racesim-client/pkg/track"
)

var (
	viewport geometry.Viewport
	steps    int
)

func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "inspect circuit paths",
	}
	cmd.PersistentFlags().StringVar(&config.Circuit,
		"circuit",
		circuits.Bahrain.Name,
		"name of the built-in circuit")
	cmd.PersistentFlags().StringVar(&config.CircuitFile,
		"circuit-file",
		"",
		"yaml file with a circuit definition (overrides --circuit)")
	cmd.PersistentFlags().Float64Var(&viewport.Width,
		"width",
		geometry.DefaultViewport.Width,
		"width of the drawing area")
	cmd.PersistentFlags().Float64Var(&viewport.Height,
		"height",
		geometry.DefaultViewport.Height,
		"height of the drawing area")
	cmd.PersistentFlags().Float64Var(&viewport.Padding,
		"padding",
		geometry.DefaultViewport.Padding,
		"padding on all sides of the drawing area")

	cmd.AddCommand(newPathCmd(), newPositionsCmd(), newListCmd())
	return cmd
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "prints the svg path of the circuit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := buildPath()
			if err != nil {
				return err
			}
			return printPath(cmd.OutOrStdout(), path)
		},
	}
}

func newPositionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "prints the points at evenly spaced lap fractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := buildPath()
			if err != nil {
				return err
			}
			return printPositions(cmd.OutOrStdout(), path, steps)
		},
	}
	cmd.Flags().IntVar(&steps,
		"steps",
		10,
		"number of fractions to print")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists the built-in circuits",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range circuits.Names() {
				c, err := circuits.Lookup(name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-12s %3d laps %3d points\n",
					c.Name, c.Laps, len(c.Coordinates)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func buildPath() (*geometry.Path, error) {
	var c circuits.Circuit
	var err error
	if config.CircuitFile != "" {
		c, err = circuits.LoadCircuit(config.CircuitFile)
	} else {
		c, err = circuits.Lookup(config.Circuit)
	}
	if err != nil {
		return nil, err
	}
	return c.Path(geometry.WithViewport(viewport))
}

func printPath(w io.Writer, path *geometry.Path) error {
	_, err := fmt.Fprintf(w, "%s\ntotal length: %.2f\n", path.SVG(), path.TotalLength())
	return err
}

func printPositions(w io.Writer, path *geometry.Path, n int) error {
	if n < 1 {
		return fmt.Errorf("steps must be positive, got %d", n)
	}
	for i := range n {
		f := float64(i) / float64(n)
		pt := path.PointAtFraction(f)
		if _, err := fmt.Fprintf(w, "%.3f %8.2f %8.2f\n", f, pt.X, pt.Y); err != nil {
			return err
		}
	}
	return nil
}
