package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"splitmix/media"
	"splitmix/task"
)

func run(ctx context.Context, cmd *cli.Command) error {
	reference := cmd.StringArg("reference")
	if reference == "" {
		return media.Errorf(media.KindInput, "a reference is required")
	}
	kind, err := task.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	// Ctrl-C cancels the task; the worker still reports its terminal event.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, err := newManager(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	t, events, err := manager.Start(ctx, task.Request{
		Reference:      reference,
		Kind:           kind,
		FilenamePrefix: cmd.String("prefix"),
	})
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	var view progressView = &logView{logger: logger.With("task", t.ID)}
	if isTerminal(os.Stderr) {
		view = newBarView(os.Stderr)
	}

	var terminal task.Event
	for ev := range events {
		view.update(ev)
		if ev.Terminal() {
			terminal = ev
		}
	}
	view.finish()

	switch {
	case terminal.Type == "":
		return errors.New("task ended without a result")
	case terminal.Type != task.EventCompleted:
		return errors.New(terminal.Message)
	}
	fmt.Fprintln(out, artifactTable(*terminal.Artifacts))
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressView renders task events for a foreground run.
type progressView interface {
	update(ev task.Event)
	finish()
}

type barView struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newBarView(w io.Writer) *barView {
	return &barView{w: w, bar: progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionFullWidth(),
	)}
}

func (b *barView) update(ev task.Event) {
	if ev.Stage != "" {
		b.bar.Describe(describe(ev))
	}
	_ = b.bar.Set(int(ev.Overall))
}

func (b *barView) finish() {
	_ = b.bar.Finish()
	fmt.Fprintln(b.w)
}

// logView is used when stderr is not a terminal.
type logView struct {
	logger *log.Logger
}

func (l *logView) update(ev task.Event) {
	switch ev.Type {
	case task.EventStage:
		l.logger.Info("stage", "stage", ev.Stage, "overall", fmt.Sprintf("%.0f%%", ev.Overall))
	case task.EventProgress:
		if ev.Progress != nil {
			l.logger.Debug(describe(ev), "overall", fmt.Sprintf("%.1f%%", ev.Overall))
		}
	case task.EventCompleted:
		l.logger.Info("completed")
	case task.EventFailed:
		l.logger.Error("failed", "stage", ev.Stage, "reason", ev.Message)
	}
}

func (l *logView) finish() {}

// describe renders the stage-local detail of an event.
func describe(ev task.Event) string {
	switch p := ev.Progress.(type) {
	case media.Downloading:
		if p.BytesTotal > 0 {
			return fmt.Sprintf("Downloaded: %s / %s", humanize.Bytes(uint64(max(p.BytesDone, 0))), humanize.Bytes(uint64(p.BytesTotal)))
		}
		return fmt.Sprintf("Downloaded: %s", humanize.Bytes(uint64(max(p.BytesDone, 0))))
	case media.Converting:
		return fmt.Sprintf("Converting: %.0f%%", p.Percent)
	case media.Separating:
		return fmt.Sprintf("Separating: %.0f / %.0f s", p.SegmentOffset, p.AudioLength)
	case media.Remixing:
		return "Remixing"
	}
	return string(ev.Stage)
}
