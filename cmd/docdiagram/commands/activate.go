package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/docdiagram/internal/logfields"
	"git.home.luguber.info/inful/docdiagram/internal/site"
	"git.home.luguber.info/inful/docdiagram/internal/watch"
)

// ActivateCmd implements the 'activate' command.
type ActivateCmd struct {
	Dir   string `arg:"" type:"existingdir" help:"Built site directory."`
	Watch bool   `short:"w" help:"Keep running and re-activate pages when they change."`
}

func (a *ActivateCmd) Run(root *CLI) error {
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

	sum, err := proc.Process(ctx, a.Dir)
	if err != nil {
		return err
	}
	printSummary(sum)

	if !a.Watch {
		return nil
	}
	return watchSite(ctx, a.Dir, proc)
}

func printSummary(sum site.Summary) {
	fmt.Printf("Activated %d diagrams in %d of %d pages (%d skipped, %d failed)\n",
		sum.Diagrams, sum.Changed, sum.Pages, sum.Skipped, sum.Failed)
}

func watchSite(ctx context.Context, dir string, proc *site.Processor) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w, err := watch.New(absDir, func(ctx context.Context, path string) {
		res, err := proc.ProcessFile(ctx, path)
		if err != nil {
			slog.Warn("Failed to activate page", logfields.Path(path), logfields.Error(err))
			return
		}
		if res.Changed {
			slog.Info("Page activated", logfields.Path(path), logfields.Diagrams(res.Diagrams))
		}
	}, watch.Options{
		Filter: func(path string) bool {
			rel, err := filepath.Rel(absDir, path)
			return err == nil && proc.Matches(rel)
		},
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
