package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docdiagram/cmd/docdiagram/commands"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("docdiagram"),
		kong.Description("Activate mermaid diagrams in documentation sites."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	if err := parser.Run(cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
