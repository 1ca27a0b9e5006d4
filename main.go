package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "splitmix",
		Usage:   "Convert songs, split them into stems and build smart mixes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default: search for splitmix_config.yaml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory",
			},
			&cli.StringFlag{
				Name:  "auth-source",
				Usage: `Downloader cookie source: a browser name, a cookies.txt path or "none"`,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Target format of the converted song (m4a, mp3, wav, flac, opus)",
			},
			&cli.StringFlag{
				Name:  "stem-format",
				Usage: "Target format of stems and smart mixes (mp3, wav, flac)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			resolveCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintln(cmd.Root().Writer, version)
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "splitmix:", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API",
		Action: serve,
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Process one reference in the foreground",
		ArgsUsage: "<spotify link | video link | audio URL | local file>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "reference"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Task kind: convert, split or mix",
				Value:   "convert",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Base name for the output files",
			},
		},
		Action: run,
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Show what a reference resolves to without downloading it",
		ArgsUsage: "<reference>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "reference"},
		},
		Action: resolveReference,
	}
}
