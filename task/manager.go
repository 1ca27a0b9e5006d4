// Package task runs pipeline tasks one at a time: it sequences the stages a
// task kind needs, folds their progress into one percentage and reports a
// single terminal outcome per task.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/lithammer/shortuuid/v4"

	"splitmix/config"
	"splitmix/convert"
	"splitmix/media"
	"splitmix/resolve"
)

const lockName = ".splitmix.lock"

var (
	// ErrTaskActive is wrapped in the input error Start returns while another task runs.
	ErrTaskActive   = errors.New("another task is already active")
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")
)

type Resolver interface {
	Resolve(ctx context.Context, reference string) (resolve.Resolution, error)
}

type Acquirer interface {
	Acquire(ctx context.Context, mediaURL, stagingPath string, sink media.ProgressFunc) error
}

type Converter interface {
	Convert(ctx context.Context, req convert.Request, sink media.ProgressFunc) (string, error)
}

type Separator interface {
	Separate(ctx context.Context, input, outDir string, format media.Format, sink media.ProgressFunc) (media.StemSet, error)
}

type Remixer interface {
	Remix(ctx context.Context, stems media.StemSet, out string) error
}

// Stages are the collaborators a Manager sequences. Separator and Remixer
// may be nil when only convert tasks are run.
type Stages struct {
	Resolver  Resolver
	Acquirer  Acquirer
	Converter Converter
	Separator Separator
	Remixer   Remixer
}

type Manager struct {
	cfg     *config.Config
	stages  Stages
	staging string
	logger  *log.Logger
	lock    *flock.Flock

	mu     sync.Mutex
	tasks  map[string]*Task
	active string

	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

// NewManager takes an exclusive lock on the staging directory for the
// Manager's lifetime; a second process sharing it fails here.
func NewManager(cfg *config.Config, stages Stages, logger *log.Logger) (*Manager, error) {
	staging := cfg.StagingPath()
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, media.Wrap(media.KindInput, err, "create staging directory")
	}
	lock := flock.New(filepath.Join(staging, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, media.Wrap(media.KindInput, err, "lock staging directory")
	}
	if !locked {
		return nil, media.Errorf(media.KindInput, "staging directory %s is in use by another splitmix process", staging)
	}

	return &Manager{
		cfg:     cfg,
		stages:  stages,
		staging: staging,
		logger:  logger,
		lock:    lock,
		tasks:   make(map[string]*Task),
		closing: make(chan struct{}),
	}, nil
}

// Start validates req and launches its worker. ctx bounds the task's
// lifetime, not the call: Start returns immediately. The returned channel
// delivers the task's events in order and is closed after the terminal event.
func (m *Manager) Start(ctx context.Context, req Request) (Task, <-chan Event, error) {
	t, err := m.newTask(req)
	if err != nil {
		return Task{}, nil, err
	}

	m.mu.Lock()
	if m.active != "" {
		active := m.active
		m.mu.Unlock()
		return Task{}, nil, media.Wrap(media.KindInput, ErrTaskActive, "task "+active+" is running")
	}
	select {
	case <-m.closing:
		m.mu.Unlock()
		return Task{}, nil, media.Errorf(media.KindInput, "task manager is shutting down")
	default:
	}
	taskCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	m.tasks[t.ID] = t
	m.active = t.ID
	snap := t.snapshot()
	m.wg.Add(1)
	m.mu.Unlock()

	events := make(chan Event, max(m.cfg.EventBuffer, 1))
	go m.run(taskCtx, t, events)

	m.logger.Info("task started", "task", t.ID, "kind", t.Kind, "reference", t.Reference)
	return snap, events, nil
}

func (m *Manager) newTask(req Request) (*Task, error) {
	ref := resolve.CleanReference(req.Reference)
	if ref == "" {
		return nil, media.Errorf(media.KindInput, "a reference is required")
	}
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return nil, err
	}

	outDir := req.OutputDir
	if outDir == "" {
		outDir = m.cfg.OutputDirectory
	}
	if strings.TrimSpace(outDir) == "" {
		return nil, media.Errorf(media.KindInput, "an output directory is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, media.Wrap(media.KindInput, err, "invalid output directory")
	}

	stemFormat := req.StemFormat
	if stemFormat == "" {
		stemFormat = m.cfg.StemFormat()
	}
	if kind.separates() {
		if stemFormat, err = media.ParseFormat(string(stemFormat), media.StemFormats); err != nil {
			return nil, err
		}
		if m.stages.Separator == nil || (kind == KindMix && m.stages.Remixer == nil) {
			return nil, media.Errorf(media.KindInput, "%s tasks are not available: separation is not configured", kind)
		}
	}

	return &Task{
		ID:             fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
		Kind:           kind,
		Reference:      ref,
		OutputDir:      outDir,
		StemFormat:     stemFormat,
		FilenamePrefix: strings.TrimSpace(req.FilenamePrefix),
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}, nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.snapshot(), true
}

// List returns snapshots of every retained task, oldest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	list := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		list = append(list, t.snapshot())
	}
	m.mu.Unlock()

	slices.SortFunc(list, func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return list
}

// Cancel stops a running task. The task still ends with one Failed event.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: cannot cancel task in state: %s", ErrTaskFinished, t.Status)
	}
	t.cancel()
	m.logger.Info("cancellation requested", "task", id)
	return nil
}

// minSweepInterval bounds how often Run sweeps for very short retentions.
const minSweepInterval = time.Second

// Run sweeps expired task records and orphaned staging files until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	if m.cfg.TaskRetention <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(max(m.cfg.TaskRetention/4, minSweepInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	cutoff := now.Add(-m.cfg.TaskRetention)

	m.mu.Lock()
	for id, t := range m.tasks {
		if t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
		}
	}
	active := m.active
	m.mu.Unlock()

	// Model scratch dirs are not named after the task, so only sweep while idle.
	if active != "" {
		return
	}
	entries, err := os.ReadDir(m.staging)
	if err != nil {
		m.logger.Warn("could not read staging directory", "dir", m.staging, "err", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name == lockName {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		m.logger.Info("removing orphaned staging entry", "path", name)
		os.RemoveAll(filepath.Join(m.staging, name))
	}
}

// Close cancels the active task, waits for its worker and releases the
// staging lock.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.closing) })

	m.mu.Lock()
	if t, ok := m.tasks[m.active]; ok {
		t.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	return m.lock.Unlock()
}
