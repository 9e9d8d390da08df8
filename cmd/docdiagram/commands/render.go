package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/docdiagram/internal/markdown"
)

// RenderCmd implements the 'render' command.
type RenderCmd struct {
	Src string `arg:"" type:"existingdir" help:"Markdown source directory."`
	Dst string `arg:"" help:"Output directory for the rendered site."`
}

func (r *RenderCmd) Run(root *CLI) error {
	rt, err := setupRuntime(root)
	if err != nil {
		return err
	}
	defer rt.Close()

	proc, err := rt.Processor()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := markdown.NewRenderer().RenderDir(ctx, r.Src, r.Dst)
	if err != nil {
		return err
	}
	fmt.Printf("Rendered %d pages into %s (%d files copied)\n", len(stats.Pages), r.Dst, stats.Copied)

	sum, err := proc.Process(ctx, r.Dst)
	if err != nil {
		return err
	}
	printSummary(sum)
	return nil
}
