package task

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitmix/config"
	"splitmix/convert"
	"splitmix/logging"
	"splitmix/media"
	"splitmix/resolve"
)

// recorder notes the order in which stage collaborators are invoked.
type recorder struct {
	mu    sync.Mutex
	calls []media.Stage
}

func (r *recorder) add(s media.Stage) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) stages() []media.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]media.Stage(nil), r.calls...)
}

type mockResolver struct {
	rec         *recorder
	resolveFunc func(ctx context.Context, ref string) (resolve.Resolution, error)
}

func (m *mockResolver) Resolve(ctx context.Context, ref string) (resolve.Resolution, error) {
	m.rec.add(media.StageResolving)
	return m.resolveFunc(ctx, ref)
}

type mockAcquirer struct {
	rec         *recorder
	acquireFunc func(ctx context.Context, url, staging string, sink media.ProgressFunc) error
}

func (m *mockAcquirer) Acquire(ctx context.Context, url, staging string, sink media.ProgressFunc) error {
	m.rec.add(media.StageDownloading)
	return m.acquireFunc(ctx, url, staging, sink)
}

type mockConverter struct {
	rec         *recorder
	convertFunc func(ctx context.Context, req convert.Request, sink media.ProgressFunc) (string, error)
}

func (m *mockConverter) Convert(ctx context.Context, req convert.Request, sink media.ProgressFunc) (string, error) {
	m.rec.add(media.StageConverting)
	return m.convertFunc(ctx, req, sink)
}

type mockSeparator struct {
	rec          *recorder
	separateFunc func(ctx context.Context, input, outDir string, format media.Format, sink media.ProgressFunc) (media.StemSet, error)
}

func (m *mockSeparator) Separate(ctx context.Context, input, outDir string, format media.Format, sink media.ProgressFunc) (media.StemSet, error) {
	m.rec.add(media.StageSeparating)
	return m.separateFunc(ctx, input, outDir, format, sink)
}

type mockRemixer struct {
	rec       *recorder
	remixFunc func(ctx context.Context, stems media.StemSet, out string) error
}

func (m *mockRemixer) Remix(ctx context.Context, stems media.StemSet, out string) error {
	m.rec.add(media.StageRemixing)
	return m.remixFunc(ctx, stems, out)
}

// harness wires mocks that succeed by default and observe the staging file.
type harness struct {
	cfg       *config.Config
	rec       *recorder
	resolver  *mockResolver
	acquirer  *mockAcquirer
	converter *mockConverter
	separator *mockSeparator
	remixer   *mockRemixer

	stagingSeen    string
	stagingAtStart bool
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		OutputDirectory:      t.TempDir(),
		StagingDir:           t.TempDir(),
		TargetDownloadFormat: "m4a",
		TargetStemFormat:     "mp3",
		StageTimeout:         10 * time.Second,
		TaskRetention:        time.Hour,
		EventBuffer:          256,
	}
}

func newHarness(t *testing.T) *harness {
	h := &harness{cfg: testConfig(t), rec: &recorder{}}
	h.resolver = &mockResolver{rec: h.rec, resolveFunc: func(ctx context.Context, ref string) (resolve.Resolution, error) {
		return resolve.Resolution{
			Kind:     resolve.StreamingMatch,
			Metadata: &media.SongMetadata{Title: "Song", Artists: []string{"Artist"}, DurationSeconds: 200},
			MediaURL: "https://www.youtube.com/watch?v=abc",
			Title:    "Artist - Song",
		}, nil
	}}
	h.acquirer = &mockAcquirer{rec: h.rec, acquireFunc: func(ctx context.Context, url, staging string, sink media.ProgressFunc) error {
		_, err := os.Stat(staging)
		h.stagingAtStart = err == nil
		h.stagingSeen = staging
		sink(media.Downloading{BytesDone: 0, BytesTotal: 1000})
		sink(media.Downloading{BytesDone: 500, BytesTotal: 1000})
		sink(media.Downloading{BytesDone: 1000, BytesTotal: 1000})
		return os.WriteFile(staging, []byte("audio"), 0o644)
	}}
	h.converter = &mockConverter{rec: h.rec, convertFunc: func(ctx context.Context, req convert.Request, sink media.ProgressFunc) (string, error) {
		if req.Input == h.stagingSeen {
			if _, err := os.Stat(req.Input); err != nil {
				return "", err
			}
		}
		sink(media.Converting{Percent: 50})
		sink(media.Converting{Percent: 100})
		out := filepath.Join(req.OutputDir, "Artist - Song.m4a")
		return out, os.WriteFile(out, []byte("converted"), 0o644)
	}}
	h.separator = &mockSeparator{rec: h.rec, separateFunc: func(ctx context.Context, input, outDir string, format media.Format, sink media.ProgressFunc) (media.StemSet, error) {
		sink(media.Separating{SegmentOffset: 100, AudioLength: 200})
		stems := media.StemSet{}
		for _, stem := range media.Stems {
			p := filepath.Join(outDir, "Artist - Song_"+string(stem)+format.Ext())
			if err := os.WriteFile(p, []byte(stem), 0o644); err != nil {
				return nil, err
			}
			stems[stem] = p
		}
		return stems, nil
	}}
	h.remixer = &mockRemixer{rec: h.rec, remixFunc: func(ctx context.Context, stems media.StemSet, out string) error {
		return os.WriteFile(out, []byte("mix"), 0o644)
	}}
	return h
}

func (h *harness) manager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(h.cfg, Stages{
		Resolver:  h.resolver,
		Acquirer:  h.acquirer,
		Converter: h.converter,
		Separator: h.separator,
		Remixer:   h.remixer,
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, ev)
		case <-timeout:
			t.Fatal("event channel was not closed")
		}
	}
}

func stagesStarted(events []Event) []media.Stage {
	var stages []media.Stage
	for _, ev := range events {
		if ev.Type == EventStage {
			stages = append(stages, ev.Stage)
		}
	}
	return stages
}

func assertWellFormed(t *testing.T, events []Event) Event {
	t.Helper()
	require.NotEmpty(t, events)
	last := -1.0
	terminals := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Overall, last, "overall progress went backwards")
		assert.GreaterOrEqual(t, ev.Overall, 0.0)
		assert.LessOrEqual(t, ev.Overall, 100.0)
		last = ev.Overall
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	terminal := events[len(events)-1]
	assert.True(t, terminal.Terminal(), "terminal event must be last")
	return terminal
}

func localInput(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "my track.wav")
	require.NoError(t, os.WriteFile(p, []byte("audio"), 0o644))
	return p
}

func TestPlan(t *testing.T) {
	tests := []struct {
		kind  Kind
		local bool
		want  []media.Stage
	}{
		{KindConvert, false, []media.Stage{media.StageResolving, media.StageDownloading, media.StageConverting}},
		{KindConvert, true, []media.Stage{media.StageConverting}},
		{KindSplit, false, []media.Stage{media.StageResolving, media.StageDownloading, media.StageConverting, media.StageSeparating}},
		{KindMix, false, []media.Stage{media.StageResolving, media.StageDownloading, media.StageConverting, media.StageSeparating, media.StageRemixing}},
		{KindMix, true, []media.Stage{media.StageConverting, media.StageSeparating, media.StageRemixing}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Plan(tc.kind, tc.local), "%s local=%v", tc.kind, tc.local)
	}
}

func TestAggregatorWeights(t *testing.T) {
	agg := newAggregator(Plan(KindMix, false))
	agg.complete(media.StageResolving)
	assert.InDelta(t, 5, agg.current(), 1e-9)

	// Download contributes 0%, 50% and 100% of its 35 point share.
	assert.InDelta(t, 5, agg.update(media.StageDownloading, media.Downloading{BytesDone: 0, BytesTotal: 1000}.Fraction()), 1e-9)
	assert.InDelta(t, 22.5, agg.update(media.StageDownloading, media.Downloading{BytesDone: 500, BytesTotal: 1000}.Fraction()), 1e-9)
	assert.InDelta(t, 40, agg.update(media.StageDownloading, media.Downloading{BytesDone: 1000, BytesTotal: 1000}.Fraction()), 1e-9)

	// A restarted progress bar never moves the total backwards.
	assert.InDelta(t, 40, agg.update(media.StageDownloading, 0.1), 1e-9)

	t.Run("weights re-normalize when stages are skipped", func(t *testing.T) {
		agg := newAggregator(Plan(KindConvert, true))
		assert.InDelta(t, 50, agg.update(media.StageConverting, 0.5), 1e-9)

		agg = newAggregator(Plan(KindSplit, true))
		agg.complete(media.StageConverting)
		assert.InDelta(t, 30, agg.current(), 1e-9)
		assert.InDelta(t, 65, agg.update(media.StageSeparating, 0.5), 1e-9)
	})
}

func TestLocalFileConvertOnly(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	input := localInput(t)

	h.converter.convertFunc = func(ctx context.Context, req convert.Request, sink media.ProgressFunc) (string, error) {
		assert.Equal(t, input, req.Input)
		assert.Nil(t, req.Metadata)
		assert.Equal(t, "my track", req.Title)
		for _, p := range []float64{0, 25, 50, 75, 100} {
			sink(media.Converting{Percent: p})
		}
		return filepath.Join(req.OutputDir, "my track.m4a"), nil
	}

	_, events, err := m.Start(context.Background(), Request{Reference: `"` + input + `"`, Kind: KindConvert})
	require.NoError(t, err)
	all := drain(t, events)
	terminal := assertWellFormed(t, all)

	assert.Equal(t, EventCompleted, terminal.Type)
	assert.Equal(t, []media.Stage{media.StageConverting}, h.rec.stages())
	assert.Equal(t, []media.Stage{media.StageConverting}, stagesStarted(all))

	var overall []float64
	for _, ev := range all {
		if ev.Type == EventProgress && ev.Progress != nil {
			overall = append(overall, ev.Overall)
		}
	}
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, overall)
	assert.Equal(t, 100.0, terminal.Overall)
}

func TestStreamingSplit(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)

	started, events, err := m.Start(context.Background(), Request{Reference: "https://open.spotify.com/track/abc", Kind: KindSplit})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, started.Status)

	all := drain(t, events)
	terminal := assertWellFormed(t, all)
	require.Equal(t, EventCompleted, terminal.Type)

	want := []media.Stage{media.StageResolving, media.StageDownloading, media.StageConverting, media.StageSeparating}
	assert.Equal(t, want, h.rec.stages())
	assert.Equal(t, want, stagesStarted(all))

	require.NotNil(t, terminal.Artifacts)
	assert.Len(t, terminal.Artifacts.Stems, 4)
	assert.ElementsMatch(t, media.Stems, keys(terminal.Artifacts.Stems))
	assert.Equal(t, "Song", terminal.Artifacts.Metadata.Title)

	// Staging existed only between download start and conversion end.
	assert.False(t, h.stagingAtStart)
	assert.NotEmpty(t, h.stagingSeen)
	assert.NoFileExists(t, h.stagingSeen)

	got, ok := m.Get(started.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.Empty(t, got.Error)
}

func keys(s media.StemSet) []media.StemName {
	var out []media.StemName
	for k := range s {
		out = append(out, k)
	}
	return out
}

func TestSplitAndMix(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	input := localInput(t)

	var mixedTo string
	h.remixer.remixFunc = func(ctx context.Context, stems media.StemSet, out string) error {
		mixedTo = out
		return os.WriteFile(out, []byte("mix"), 0o644)
	}

	_, events, err := m.Start(context.Background(), Request{Reference: input, Kind: KindMix, StemFormat: media.FormatWAV})
	require.NoError(t, err)
	all := drain(t, events)
	terminal := assertWellFormed(t, all)
	require.Equal(t, EventCompleted, terminal.Type, terminal.Message)

	assert.Equal(t, []media.Stage{media.StageConverting, media.StageSeparating, media.StageRemixing}, h.rec.stages())
	assert.Equal(t, filepath.Join(h.cfg.OutputDirectory, "Artist - Song_smartmix.wav"), mixedTo)
	assert.Equal(t, mixedTo, terminal.Artifacts.Mix)
	assert.Len(t, terminal.Artifacts.Files(), 6)

	var sawRemixing bool
	for _, ev := range all {
		if _, ok := ev.Progress.(media.Remixing); ok {
			sawRemixing = true
		}
	}
	assert.True(t, sawRemixing)
}

func TestDownloadFailure(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	h.acquirer.acquireFunc = func(ctx context.Context, url, staging string, sink media.ProgressFunc) error {
		h.stagingSeen = staging
		sink(media.Downloading{BytesDone: 300, BytesTotal: 1000})
		// Leave a fragment behind the way an interrupted tool would.
		_ = os.WriteFile(staging+".part", []byte("frag"), 0o644)
		return media.Errorf(media.KindDownload, "connection reset by peer")
	}

	started, events, err := m.Start(context.Background(), Request{Reference: "https://www.youtube.com/watch?v=abc", Kind: KindMix})
	require.NoError(t, err)
	all := drain(t, events)
	terminal := assertWellFormed(t, all)

	assert.Equal(t, EventFailed, terminal.Type)
	assert.Equal(t, media.StageDownloading, terminal.Stage)
	assert.ErrorIs(t, terminal.Err, media.ErrDownload)
	assert.Contains(t, terminal.Message, "downloading failed")
	assert.Contains(t, terminal.Message, "connection reset by peer")
	assert.Equal(t, []media.Stage{media.StageResolving, media.StageDownloading}, h.rec.stages())

	assert.NoFileExists(t, h.stagingSeen)
	assert.NoFileExists(t, h.stagingSeen+".part")

	got, _ := m.Get(started.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, terminal.Message, got.Error)
}

func TestConversionFailureRemovesStaging(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	h.converter.convertFunc = func(ctx context.Context, req convert.Request, sink media.ProgressFunc) (string, error) {
		assert.FileExists(t, req.Input)
		sink(media.Converting{Percent: 30})
		return "", media.Errorf(media.KindConversion, "encoder exited with status 1")
	}

	started, events, err := m.Start(context.Background(), Request{Reference: "https://www.youtube.com/watch?v=abc", Kind: KindSplit})
	require.NoError(t, err)
	terminal := assertWellFormed(t, drain(t, events))

	assert.Equal(t, EventFailed, terminal.Type)
	assert.Equal(t, media.StageConverting, terminal.Stage)
	assert.ErrorIs(t, terminal.Err, media.ErrConversion)
	assert.Contains(t, terminal.Message, "converting failed")
	assert.Equal(t, []media.Stage{media.StageResolving, media.StageDownloading, media.StageConverting}, h.rec.stages())

	require.NotEmpty(t, h.stagingSeen)
	assert.NoFileExists(t, h.stagingSeen)
	entries, err := filepath.Glob(filepath.Join(h.cfg.StagingPath(), started.ID+".*"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, _ := m.Get(started.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Empty(t, got.Artifacts.Converted)
}

func TestUnclassifiedStageErrorTakesStageKind(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	h.separator.separateFunc = func(ctx context.Context, input, outDir string, format media.Format, sink media.ProgressFunc) (media.StemSet, error) {
		return nil, errors.New("model crashed")
	}

	started, events, err := m.Start(context.Background(), Request{Reference: "https://open.spotify.com/track/abc", Kind: KindSplit})
	require.NoError(t, err)
	terminal := assertWellFormed(t, drain(t, events))

	assert.Equal(t, media.StageSeparating, terminal.Stage)
	assert.ErrorIs(t, terminal.Err, media.ErrSeparation)
	assert.Nil(t, terminal.Artifacts)
	assert.NoFileExists(t, h.stagingSeen)

	// The converted file from the earlier stage is kept.
	got, _ := m.Get(started.ID)
	assert.FileExists(t, got.Artifacts.Converted)
	assert.Empty(t, got.Artifacts.Stems)
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	release := make(chan struct{})
	h.acquirer.acquireFunc = func(ctx context.Context, url, staging string, sink media.ProgressFunc) error {
		<-release
		return os.WriteFile(staging, []byte("audio"), 0o644)
	}

	first, events, err := m.Start(context.Background(), Request{Reference: "https://youtu.be/abc", Kind: KindConvert})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := m.Get(first.ID)
		return got.Status == StatusDownloading
	}, 2*time.Second, 5*time.Millisecond)

	_, _, err = m.Start(context.Background(), Request{Reference: "https://youtu.be/other", Kind: KindConvert})
	assert.ErrorIs(t, err, media.ErrInput)
	assert.ErrorIs(t, err, ErrTaskActive)

	got, _ := m.Get(first.ID)
	assert.Equal(t, StatusDownloading, got.Status)
	assert.Len(t, m.List(), 1)

	close(release)
	terminal := assertWellFormed(t, drain(t, events))
	assert.Equal(t, EventCompleted, terminal.Type)

	// The slot is free once the terminal event is out.
	_, events, err = m.Start(context.Background(), Request{Reference: "https://youtu.be/other", Kind: KindConvert})
	require.NoError(t, err)
	drain(t, events)
	assert.Len(t, m.List(), 2)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty reference", Request{Reference: "  ", Kind: KindConvert}},
		{"unknown kind", Request{Reference: "https://youtu.be/x", Kind: "karaoke"}},
		{"disallowed stem format", Request{Reference: "https://youtu.be/x", Kind: KindSplit, StemFormat: media.FormatOpus}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := m.Start(context.Background(), tc.req)
			assert.ErrorIs(t, err, media.ErrInput)
		})
	}
	assert.Empty(t, m.List())
}

func TestCancel(t *testing.T) {
	t.Run("cancel running task", func(t *testing.T) {
		h := newHarness(t)
		m := h.manager(t)
		processingStarted := make(chan struct{})
		h.acquirer.acquireFunc = func(ctx context.Context, url, staging string, sink media.ProgressFunc) error {
			h.stagingSeen = staging
			_ = os.WriteFile(staging, []byte("partial"), 0o644)
			close(processingStarted)
			<-ctx.Done()
			return ctx.Err()
		}

		started, events, err := m.Start(context.Background(), Request{Reference: "https://youtu.be/abc", Kind: KindSplit})
		require.NoError(t, err)
		<-processingStarted

		require.NoError(t, m.Cancel(started.ID))
		terminal := assertWellFormed(t, drain(t, events))

		assert.Equal(t, EventFailed, terminal.Type)
		assert.Equal(t, "canceled", terminal.Message)
		assert.Equal(t, media.StageDownloading, terminal.Stage)
		assert.NotContains(t, h.rec.stages(), media.StageConverting)
		assert.NoFileExists(t, h.stagingSeen)

		got, _ := m.Get(started.ID)
		assert.Equal(t, StatusCanceled, got.Status)
	})

	t.Run("cannot cancel completed task", func(t *testing.T) {
		h := newHarness(t)
		m := h.manager(t)

		started, events, err := m.Start(context.Background(), Request{Reference: "https://youtu.be/abc", Kind: KindConvert})
		require.NoError(t, err)
		drain(t, events)

		err = m.Cancel(started.ID)
		assert.ErrorIs(t, err, ErrTaskFinished)
		assert.Contains(t, err.Error(), "cannot cancel task in state: completed")
	})

	t.Run("unknown task", func(t *testing.T) {
		m := newHarness(t).manager(t)
		assert.ErrorIs(t, m.Cancel("nope"), ErrTaskNotFound)
	})
}

func TestStageTimeout(t *testing.T) {
	h := newHarness(t)
	h.cfg.StageTimeout = 20 * time.Millisecond
	m := h.manager(t)
	h.resolver.resolveFunc = func(ctx context.Context, ref string) (resolve.Resolution, error) {
		<-ctx.Done()
		return resolve.Resolution{}, ctx.Err()
	}

	started, events, err := m.Start(context.Background(), Request{Reference: "https://open.spotify.com/track/abc", Kind: KindConvert})
	require.NoError(t, err)
	terminal := assertWellFormed(t, drain(t, events))

	assert.ErrorIs(t, terminal.Err, media.ErrResolution)
	assert.Contains(t, terminal.Message, "timed out")
	got, _ := m.Get(started.ID)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestStagingLock(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)

	_, err := NewManager(h.cfg, Stages{}, logging.Discard())
	assert.ErrorIs(t, err, media.ErrInput)

	require.NoError(t, m.Close())
	second, err := NewManager(h.cfg, Stages{}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestSweep(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)

	started, events, err := m.Start(context.Background(), Request{Reference: "https://youtu.be/abc", Kind: KindConvert})
	require.NoError(t, err)
	drain(t, events)

	orphan := filepath.Join(h.cfg.StagingPath(), "old_123.m4a")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	m.sweep(time.Now())
	_, ok := m.Get(started.ID)
	assert.True(t, ok, "recent task records are retained")
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, filepath.Join(h.cfg.StagingPath(), lockName))

	m.sweep(time.Now().Add(3 * time.Hour))
	_, ok = m.Get(started.ID)
	assert.False(t, ok)
}

func TestTaskTimestamps(t *testing.T) {
	pending, err := json.Marshal(Task{ID: "abc", Status: StatusPending, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.NotContains(t, string(pending), "startedAt")
	assert.NotContains(t, string(pending), "completedAt")

	h := newHarness(t)
	m := h.manager(t)
	started, events, err := m.Start(context.Background(), Request{Reference: localInput(t), Kind: KindConvert})
	require.NoError(t, err)
	drain(t, events)

	got, ok := m.Get(started.ID)
	require.True(t, ok)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(*got.StartedAt))

	done, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(done), `"startedAt"`)
	assert.Contains(t, string(done), `"completedAt"`)
}

func TestRunWithTinyRetention(t *testing.T) {
	h := newHarness(t)
	h.cfg.TaskRetention = 3 * time.Nanosecond
	m := h.manager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NotPanics(t, func() { m.Run(ctx) })
}
