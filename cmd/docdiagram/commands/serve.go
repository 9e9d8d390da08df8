package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/docdiagram/internal/server"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Dir  string `arg:"" type:"existingdir" help:"Site directory to serve."`
	Port int    `short:"p" help:"Port to listen on (overrides server.port)."`
}

func (s *ServeCmd) Run(root *CLI) error {
	rt, err := setupRuntime(root)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config.Server
	if s.Port > 0 {
		cfg.Port = s.Port
	}
	srv, err := server.New(cfg, server.Options{
		Dir:         s.Dir,
		Activator:   rt.Activator,
		Registry:    rt.Registry,
		Recorder:    rt.Recorder,
		Logger:      slog.Default(),
		WaitTimeout: rt.Config.Renderer.WaitTimeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return srv.Run(ctx)
}
