package task

import (
	"context"
	"maps"
	"strings"
	"time"

	"splitmix/media"
)

// Kind selects which stages a task runs.
type Kind string

const (
	KindConvert Kind = "convert"
	KindSplit   Kind = "split"
	KindMix     Kind = "mix"
)

// ParseKind accepts the canonical names and the long forms.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "convert", "convertonly", "convert-only":
		return KindConvert, nil
	case "split":
		return KindSplit, nil
	case "mix", "splitandmix", "split-and-mix":
		return KindMix, nil
	}
	return "", media.Errorf(media.KindInput, "unknown task kind %q (want convert, split or mix)", s)
}

func (k Kind) separates() bool { return k == KindSplit || k == KindMix }

type Status string

const (
	StatusPending     Status = "pending"
	StatusResolving   Status = "resolving"
	StatusDownloading Status = "downloading"
	StatusConverting  Status = "converting"
	StatusSeparating  Status = "separating"
	StatusRemixing    Status = "remixing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCanceled    Status = "canceled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

func stageStatus(stage media.Stage) Status { return Status(stage) }

// Artifacts are the caller-owned outputs of a task.
type Artifacts struct {
	Converted string              `json:"converted,omitempty"`
	Stems     media.StemSet       `json:"stems,omitempty"`
	Mix       string              `json:"mix,omitempty"`
	Metadata  *media.SongMetadata `json:"metadata,omitempty"`
}

// Files lists every written output path.
func (a Artifacts) Files() []string {
	var files []string
	if a.Converted != "" {
		files = append(files, a.Converted)
	}
	for _, stem := range media.Stems {
		if p := a.Stems[stem]; p != "" {
			files = append(files, p)
		}
	}
	if a.Mix != "" {
		files = append(files, a.Mix)
	}
	return files
}

func (a Artifacts) clone() Artifacts {
	a.Stems = maps.Clone(a.Stems)
	return a
}

type Request struct {
	Reference string
	Kind      Kind
	// OutputDir defaults to OUTPUT_DIRECTORY.
	OutputDir string
	// StemFormat defaults to TARGET_STEM_FORMAT.
	StemFormat media.Format
	// FilenamePrefix replaces the computed output base name.
	FilenamePrefix string
}

type Task struct {
	ID             string       `json:"id"`
	Kind           Kind         `json:"kind"`
	Reference      string       `json:"reference"`
	OutputDir      string       `json:"outputDirectory"`
	StemFormat     media.Format `json:"stemFormat,omitempty"`
	FilenamePrefix string       `json:"filenamePrefix,omitempty"`
	Status         Status       `json:"status"`
	Stage          media.Stage  `json:"stage,omitempty"`
	Progress       float64      `json:"progress"`
	Error          string       `json:"error,omitempty"`
	Artifacts      Artifacts    `json:"artifacts"`
	CreatedAt      time.Time    `json:"createdAt"`
	StartedAt      *time.Time   `json:"startedAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`

	cancel context.CancelFunc
}

func (t *Task) snapshot() Task {
	s := *t
	s.cancel = nil
	s.Artifacts = t.Artifacts.clone()
	return s
}
