package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"splitmix/convert"
	"splitmix/media"
	"splitmix/remix"
	"splitmix/resolve"
)

// worker executes one task. It is the only writer of the task's events.
type worker struct {
	m      *Manager
	t      *Task
	events chan<- Event
	agg    *aggregator
	logger *log.Logger

	// failedStage is the stage whose error ended the task.
	failedStage media.Stage
	staging     string
}

func (m *Manager) run(ctx context.Context, t *Task, events chan<- Event) {
	defer m.wg.Done()
	defer close(events)

	w := &worker{m: m, t: t, events: events, logger: m.logger.With("task", t.ID)}
	m.update(t, func(t *Task) {
		now := time.Now()
		t.StartedAt = &now
	})

	artifacts, err := w.execute(ctx)
	w.removeStaging()

	var terminal Event
	switch {
	case err == nil:
		overall := w.agg.finish()
		terminal = Event{TaskID: t.ID, Type: EventCompleted, Overall: overall, Artifacts: &artifacts}
		m.finish(t, StatusCompleted, overall, artifacts, "")
		w.logger.Info("task completed", "files", len(artifacts.Files()))
	case ctx.Err() != nil:
		terminal = Event{TaskID: t.ID, Type: EventFailed, Stage: w.failedStage, Overall: w.progress(),
			Message: "canceled", Err: ctx.Err()}
		m.finish(t, StatusCanceled, terminal.Overall, artifacts, terminal.Message)
		w.logger.Warn("task canceled", "stage", w.failedStage)
	default:
		msg := fmt.Sprintf("%s failed: %v", w.failedStage, err)
		terminal = Event{TaskID: t.ID, Type: EventFailed, Stage: w.failedStage, Overall: w.progress(),
			Message: msg, Err: err}
		m.finish(t, StatusFailed, terminal.Overall, artifacts, msg)
		w.logger.Error("task failed", "stage", w.failedStage, "err", err)
	}

	// The consumer always gets the terminal event unless the Manager closes.
	select {
	case events <- terminal:
	case <-m.closing:
	}
}

func (w *worker) progress() float64 {
	if w.agg == nil {
		return 0
	}
	return w.agg.current()
}

// execute runs the planned stages. Artifacts of stages that completed are
// returned even when a later stage fails.
func (w *worker) execute(ctx context.Context) (Artifacts, error) {
	var art Artifacts
	t, stages := w.t, w.m.stages

	localPath, local := resolve.LocalPath(t.Reference)
	w.agg = newAggregator(Plan(t.Kind, local))

	input, title := localPath, media.BaseName(localPath)
	if !local {
		var res resolve.Resolution
		err := w.stage(ctx, media.StageResolving, func(ctx context.Context, _ media.ProgressFunc) error {
			var err error
			res, err = stages.Resolver.Resolve(ctx, t.Reference)
			return err
		})
		if err != nil {
			return art, err
		}
		art.Metadata = res.Metadata
		title = res.Title

		if res.Kind == resolve.LocalFile {
			input = res.Path
			w.agg.complete(media.StageDownloading)
		} else {
			w.staging = filepath.Join(w.m.staging, t.ID+w.m.cfg.DownloadFormat().Ext())
			err = w.stage(ctx, media.StageDownloading, func(ctx context.Context, sink media.ProgressFunc) error {
				return stages.Acquirer.Acquire(ctx, res.MediaURL, w.staging, sink)
			})
			if err != nil {
				return art, err
			}
			input = w.staging
		}
	}

	err := w.stage(ctx, media.StageConverting, func(ctx context.Context, sink media.ProgressFunc) error {
		var err error
		art.Converted, err = stages.Converter.Convert(ctx, convert.Request{
			Input:     input,
			OutputDir: t.OutputDir,
			Format:    w.m.cfg.DownloadFormat(),
			Metadata:  art.Metadata,
			Title:     title,
			Prefix:    t.FilenamePrefix,
		}, sink)
		return err
	})
	w.removeStaging()
	if err != nil {
		return art, err
	}
	w.m.update(t, func(t *Task) { t.Artifacts.Converted = art.Converted })
	if t.Kind == KindConvert {
		return art, nil
	}

	err = w.stage(ctx, media.StageSeparating, func(ctx context.Context, sink media.ProgressFunc) error {
		var err error
		art.Stems, err = stages.Separator.Separate(ctx, art.Converted, t.OutputDir, t.StemFormat, sink)
		return err
	})
	if err != nil {
		return art, err
	}
	w.m.update(t, func(t *Task) { t.Artifacts.Stems = art.Stems })
	if t.Kind == KindSplit {
		return art, nil
	}

	mixPath := remix.OutputPath(t.OutputDir, media.BaseName(art.Converted), t.StemFormat)
	err = w.stage(ctx, media.StageRemixing, func(ctx context.Context, sink media.ProgressFunc) error {
		sink(media.Remixing{})
		return stages.Remixer.Remix(ctx, art.Stems, mixPath)
	})
	if err != nil {
		return art, err
	}
	art.Mix = mixPath
	return art, nil
}

type stageFunc func(ctx context.Context, sink media.ProgressFunc) error

// stage runs fn under STAGE_TIMEOUT and classifies whatever it returns with
// the stage's error kind.
func (w *worker) stage(ctx context.Context, stage media.Stage, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		w.failedStage = stage
		return err
	}

	w.m.update(w.t, func(t *Task) {
		t.Status = stageStatus(stage)
		t.Stage = stage
	})
	w.logger.Info("stage started", "stage", stage)
	w.send(ctx, Event{TaskID: w.t.ID, Type: EventStage, Stage: stage, Overall: w.agg.current()})

	stageCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := w.m.cfg.StageTimeout; timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	sink := func(ev media.ProgressEvent) {
		if ctx.Err() != nil || ev == nil {
			return
		}
		overall := w.agg.update(ev.Stage(), ev.Fraction())
		w.m.update(w.t, func(t *Task) { t.Progress = overall })
		w.send(ctx, Event{TaskID: w.t.ID, Type: EventProgress, Stage: ev.Stage(), Progress: ev, Overall: overall})
	}

	if err := fn(stageCtx, sink); err != nil {
		w.failedStage = stage
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return media.Errorf(stageKind(stage), "%s timed out after %s", stage, w.m.cfg.StageTimeout)
		}
		return media.Ensure(stageKind(stage), err, "")
	}
	if err := ctx.Err(); err != nil {
		w.failedStage = stage
		return err
	}

	overall := w.agg.complete(stage)
	w.m.update(w.t, func(t *Task) { t.Progress = overall })
	w.send(ctx, Event{TaskID: w.t.ID, Type: EventProgress, Stage: stage, Overall: overall})
	w.logger.Info("stage finished", "stage", stage, "overall", fmt.Sprintf("%.1f%%", overall))
	return nil
}

// send delivers a non-terminal event, giving up if the task is canceled.
func (w *worker) send(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// removeStaging deletes the staging file and any sibling the download tool
// left next to it.
func (w *worker) removeStaging() {
	if w.staging == "" {
		return
	}
	matches, _ := filepath.Glob(filepath.Join(w.m.staging, w.t.ID+".*"))
	for _, p := range matches {
		if err := os.RemoveAll(p); err != nil {
			w.logger.Warn("could not remove staging file", "path", p, "err", err)
		}
	}
	w.staging = ""
}

func stageKind(stage media.Stage) media.Kind {
	switch stage {
	case media.StageResolving:
		return media.KindResolution
	case media.StageDownloading:
		return media.KindDownload
	case media.StageConverting:
		return media.KindConversion
	case media.StageSeparating:
		return media.KindSeparation
	default:
		return media.KindRemix
	}
}

func (m *Manager) update(t *Task, fn func(t *Task)) {
	m.mu.Lock()
	fn(t)
	m.mu.Unlock()
}

// finish records the outcome and frees the single-flight slot before the
// terminal event is sent, so a consumer reacting to it can start a new task.
func (m *Manager) finish(t *Task, status Status, overall float64, art Artifacts, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Status = status
	t.Progress = overall
	t.Artifacts = art.clone()
	t.Error = msg
	now := time.Now()
	t.CompletedAt = &now
	if m.active == t.ID {
		m.active = ""
	}
}
