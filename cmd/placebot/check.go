package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/placebot/canvas"
	"github.com/hazyhaar/placebot/selector"
	"github.com/hazyhaar/placebot/target"
)

func newCheckCmd(global *globalOptions) *cobra.Command {
	var skipCanvas bool
	command := &cobra.Command{
		Use:   "check",
		Short: "Resolve the target tree once and report completion without placing pixels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, false)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			deps := newCollaborators(cfg, logger)

			var board *canvas.Canvas
			if !skipCanvas {
				board = canvas.New(cfg.Canvas.Width, cfg.Canvas.Height)
				if err := deps.client.FetchCanvas(cmd.Context(), board); err != nil {
					return &exitError{Code: 1, Err: err}
				}
			}

			out := cmd.OutOrStdout()
			queue := []string{cfg.Target}
			seen := map[string]bool{cfg.Target: true}
			for len(queue) > 0 {
				ref := queue[0]
				queue = queue[1:]
				t, err := deps.resolver.Resolve(cmd.Context(), ref, nil)
				if err != nil {
					if target.IsFatal(err) {
						return &exitError{Code: 1, Err: err}
					}
					fmt.Fprintf(out, "%s\terror: %v\n", ref, err)
					continue
				}
				report(out, ref, t, board)
				for _, fb := range t.Descriptor.Fallbacks {
					if !seen[fb] {
						seen[fb] = true
						queue = append(queue, fb)
					}
				}
			}
			return nil
		},
	}
	command.Flags().BoolVar(&skipCanvas, "skip-canvas", false, "do not download the board; only validate descriptors and images")
	return command
}

func report(out io.Writer, ref string, t *target.Target, board *canvas.Canvas) {
	fmt.Fprintf(out, "%s\t%dx%d at (%d,%d)\tv%d.%d\tfallbacks=%d",
		ref, t.Width, t.Height, t.X, t.Y,
		t.Descriptor.MajorVersion, t.Descriptor.MinorVersion, len(t.Descriptor.Fallbacks))
	switch {
	case board == nil:
	case !board.Contains(t.X, t.Y, t.Width, t.Height):
		fmt.Fprint(out, "\tout of canvas bounds")
	default:
		s := selector.Diff(board, t)
		fmt.Fprintf(out, "\t%.1f%% (%d/%d)", s.Percent(), s.Done(), s.Solid)
	}
	fmt.Fprintln(out)
}
