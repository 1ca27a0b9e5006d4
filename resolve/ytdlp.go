package resolve

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"splitmix/executor"
	"splitmix/media"
)

const watchURL = "https://www.youtube.com/watch?v="

// YtdlpSearch finds playable media and titles through yt-dlp.
type YtdlpSearch struct {
	bin        string
	exec       executor.Executor
	candidates int
	tolerance  time.Duration
	logger     *log.Logger
}

type candidate struct {
	id       string
	duration float64 // seconds, <0 when unknown
}

// NewYtdlpSearch fails with an input error when the binary is missing.
func NewYtdlpSearch(bin string, ex executor.Executor, candidates int, tolerance time.Duration, logger *log.Logger) (*YtdlpSearch, error) {
	path, err := ex.LookPath(bin)
	if err != nil {
		return nil, media.Errorf(media.KindInput, "yt-dlp binary not found or not in PATH: %s", bin)
	}
	if candidates < 1 {
		candidates = 1
	}
	return &YtdlpSearch{bin: path, exec: ex, candidates: candidates, tolerance: tolerance, logger: logger}, nil
}

// FindPlayableURL picks the search hit whose duration is closest to the
// song's, within the configured tolerance.
func (y *YtdlpSearch) FindPlayableURL(ctx context.Context, meta *media.SongMetadata) (string, error) {
	query := fmt.Sprintf("ytsearch%d:%s", y.candidates, meta.DisplayName())
	args := []string{"--no-warnings", "--flat-playlist", "--skip-download",
		"--print", "%(id)s\t%(duration)s", query}

	var found []candidate
	output, err := y.exec.Run(ctx, y.bin, args, func(line string) {
		if c, ok := parseCandidate(line); ok {
			found = append(found, c)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", media.Wrap(media.KindResolution, err, "yt-dlp search failed: "+executor.LastLine(output))
	}

	best, ok := pickCandidate(found, meta.DurationSeconds, y.tolerance.Seconds())
	if !ok {
		return "", media.Errorf(media.KindResolution, "no playable match for %q", meta.DisplayName())
	}
	y.logger.Debug("search match", "id", best.id, "duration", best.duration, "want", meta.DurationSeconds)
	return watchURL + best.id, nil
}

// Title reads the media title without downloading.
func (y *YtdlpSearch) Title(ctx context.Context, mediaURL string) (string, error) {
	args := []string{"--no-warnings", "--skip-download", "--no-playlist", "--print", "%(title)s", mediaURL}
	var title string
	output, err := y.exec.Run(ctx, y.bin, args, func(line string) {
		if title == "" && !strings.HasPrefix(line, "ERROR:") && !strings.HasPrefix(line, "WARNING:") {
			title = line
		}
	})
	if err != nil {
		return "", fmt.Errorf("yt-dlp title lookup failed: %w (%s)", err, executor.LastLine(output))
	}
	return title, nil
}

func parseCandidate(line string) (candidate, bool) {
	id, dur, ok := strings.Cut(line, "\t")
	id = strings.TrimSpace(id)
	if !ok || id == "" || id == "NA" || strings.ContainsAny(id, " :") {
		return candidate{}, false
	}
	c := candidate{id: id, duration: -1}
	if d, err := strconv.ParseFloat(strings.TrimSpace(dur), 64); err == nil {
		c.duration = d
	}
	return c, true
}

// pickCandidate prefers the closest known duration within tolerance. Hits
// without a duration are only accepted when no hit reports one.
func pickCandidate(found []candidate, want, tolerance float64) (candidate, bool) {
	var (
		best     candidate
		bestDiff = math.Inf(1)
		anyKnown bool
	)
	for _, c := range found {
		if c.duration < 0 {
			continue
		}
		anyKnown = true
		diff := math.Abs(c.duration - want)
		if want <= 0 || tolerance <= 0 || diff <= tolerance {
			if diff < bestDiff {
				best, bestDiff = c, diff
			}
		}
	}
	if !math.IsInf(bestDiff, 1) {
		return best, true
	}
	if !anyKnown && len(found) > 0 {
		return found[0], true
	}
	return candidate{}, false
}
