package media

// Stage names a step of the pipeline.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StageDownloading Stage = "downloading"
	StageConverting  Stage = "converting"
	StageSeparating  Stage = "separating"
	StageRemixing    Stage = "remixing"
)

// ProgressEvent is one of Downloading, Converting, Separating or Remixing.
// Consumers switch on the concrete type.
type ProgressEvent interface {
	Stage() Stage
	// Fraction is the stage-local completion in [0,1].
	Fraction() float64
}

// ProgressFunc receives stage-local progress.
type ProgressFunc func(ProgressEvent)

type Downloading struct {
	BytesDone  int64 `json:"bytesDone"`
	BytesTotal int64 `json:"bytesTotal"`
}

func (Downloading) Stage() Stage { return StageDownloading }

// Fraction stays at 0 while the total is unknown.
func (d Downloading) Fraction() float64 {
	if d.BytesTotal <= 0 {
		return 0
	}
	return clamp01(float64(d.BytesDone) / float64(d.BytesTotal))
}

func (d Downloading) Percent() float64 { return d.Fraction() * 100 }

type Converting struct {
	Percent float64 `json:"percent"`
}

func (Converting) Stage() Stage { return StageConverting }

func (c Converting) Fraction() float64 { return clamp01(c.Percent / 100) }

type Separating struct {
	SegmentOffset float64 `json:"segmentOffset"`
	AudioLength   float64 `json:"audioLength"`
}

func (Separating) Stage() Stage { return StageSeparating }

func (s Separating) Fraction() float64 {
	if s.AudioLength <= 0 {
		return 0
	}
	return clamp01(s.SegmentOffset / s.AudioLength)
}

// Remixing marks the start of the atomic mix step.
type Remixing struct{}

func (Remixing) Stage() Stage { return StageRemixing }

func (Remixing) Fraction() float64 { return 0 }

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
