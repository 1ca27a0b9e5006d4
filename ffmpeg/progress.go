package ffmpeg

import (
	"strconv"
	"strings"
)

// progressTracker turns "-progress pipe:1" key=value lines into percentages.
type progressTracker struct {
	totalSeconds float64
	last         float64
	onProgress   func(percent float64)
}

func newProgressTracker(totalSeconds float64, onProgress func(float64)) *progressTracker {
	return &progressTracker{totalSeconds: totalSeconds, onProgress: onProgress}
}

func (p *progressTracker) line(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch key {
	// out_time_ms is also microseconds, a long-standing ffmpeg quirk.
	case "out_time_us", "out_time_ms":
		if p.totalSeconds <= 0 {
			return
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.report(float64(us) / 1e6 / p.totalSeconds * 100)
	case "progress":
		if value == "end" {
			p.report(100)
		}
	}
}

func (p *progressTracker) finish() { p.report(100) }

func (p *progressTracker) report(percent float64) {
	if percent > 100 {
		percent = 100
	}
	if percent <= p.last {
		return
	}
	p.last = percent
	if p.onProgress != nil {
		p.onProgress(percent)
	}
}
