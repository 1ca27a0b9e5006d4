package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"splitmix/executor"
	"splitmix/media"
	"splitmix/resolve"
	"splitmix/task"
)

func resolveReference(ctx context.Context, cmd *cli.Command) error {
	reference := cmd.StringArg("reference")
	if reference == "" {
		return media.Errorf(media.KindInput, "a reference is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	resolver, err := newResolver(ctx, cfg, executor.Binary{Logger: logger}, logger)
	if err != nil {
		return err
	}
	res, err := resolver.Resolve(ctx, reference)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, resolutionTable(res))
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func resolutionTable(res resolve.Resolution) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRow(table.Row{"Kind", res.Kind.String()})
	tw.AppendRow(table.Row{"Title", res.Title})
	if res.MediaURL != "" {
		tw.AppendRow(table.Row{"Media URL", res.MediaURL})
	}
	if res.Path != "" {
		tw.AppendRow(table.Row{"Path", res.Path})
	}
	if m := res.Metadata; m != nil {
		tw.AppendRow(table.Row{"Song", m.Title})
		tw.AppendRow(table.Row{"Artists", strings.Join(m.Artists, ", ")})
		if m.Album != "" {
			tw.AppendRow(table.Row{"Album", m.Album})
		}
		tw.AppendRow(table.Row{"Duration", formatDuration(m.DurationSeconds)})
		if m.ArtworkURL != "" {
			tw.AppendRow(table.Row{"Artwork", m.ArtworkURL})
		}
	}
	return tw.Render()
}

func artifactTable(a task.Artifacts) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Artifact", "Path", "Size"})
	add := func(name, path string) {
		if path != "" {
			tw.AppendRow(table.Row{name, path, fileSize(path)})
		}
	}
	add("converted", a.Converted)
	for _, stem := range media.Stems {
		add(string(stem), a.Stems[stem])
	}
	add("smart mix", a.Mix)
	return tw.Render()
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func formatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
