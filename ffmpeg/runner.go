// Package ffmpeg drives the ffmpeg and ffprobe binaries: transcoding with
// progress, the smart-mix filter graph, duration probing and tag remuxing.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"splitmix/config"
	"splitmix/executor"
	"splitmix/media"
	"splitmix/resources"
)

type Runner struct {
	ffmpeg    string
	ffprobe   string
	extraArgs []string
	exec      executor.Executor
	gate      resources.Gate
	logger    *log.Logger
}

// NewRunner resolves both binaries up front; a missing encoder is an input error.
func NewRunner(cfg *config.Config, ex executor.Executor, gate resources.Gate, logger *log.Logger) (*Runner, error) {
	ffmpegPath, err := ex.LookPath(cfg.FFBin)
	if err != nil {
		return nil, media.Errorf(media.KindInput, "ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}
	ffprobePath, err := ex.LookPath(cfg.FFProbeBin)
	if err != nil {
		return nil, media.Errorf(media.KindInput, "ffprobe binary not found or not in PATH: %s", cfg.FFProbeBin)
	}

	extra, err := SplitArgs(cfg.EncoderArgs)
	if err != nil {
		return nil, media.Wrap(media.KindInput, err, "ENCODER_ARGS")
	}
	if err := SanitizeArgs(extra); err != nil {
		return nil, media.Wrap(media.KindInput, err, "ENCODER_ARGS")
	}

	return &Runner{
		ffmpeg:    ffmpegPath,
		ffprobe:   ffprobePath,
		extraArgs: extra,
		exec:      ex,
		gate:      gate,
		logger:    logger,
	}, nil
}

// Duration returns the container duration of path in seconds.
func (r *Runner) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path}

	var value string
	output, err := r.exec.Run(ctx, r.ffprobe, args, func(line string) {
		if _, perr := strconv.ParseFloat(line, 64); perr == nil {
			value = line
		}
	})
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w (%s)", err, executor.LastLine(output))
	}
	if value == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}
	return strconv.ParseFloat(value, 64)
}

// Convert transcodes in to out as format. out may carry any extension; the
// muxer is chosen from format. onProgress receives increasing percentages.
func (r *Runner) Convert(ctx context.Context, in, out string, format media.Format, onProgress func(percent float64)) error {
	if err := r.checkResources(filepath.Dir(out)); err != nil {
		return err
	}

	total, err := r.Duration(ctx, in)
	if err != nil {
		// Progress degrades to a single final report.
		r.logger.Warn("could not probe duration", "input", in, "err", err)
	}

	args := []string{"-y", "-hide_banner", "-nostats", "-progress", "pipe:1", "-i", in, "-vn"}
	args = append(args, codecArgs(format)...)
	args = append(args, r.extraArgs...)
	args = append(args, "-f", muxer(format), out)

	tracker := newProgressTracker(total, onProgress)
	output, err := r.exec.Run(ctx, r.ffmpeg, args, tracker.line)
	if err != nil {
		os.Remove(out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg execution failed: %w (%s)", err, executor.LastLine(output))
	}
	tracker.finish()
	return nil
}

// SmartMixFilter low-passes the second input and blends it with the first,
// lasting as long as the longest input.
func SmartMixFilter(lowpassHz int) string {
	return fmt.Sprintf("[1:a]lowpass=f=%d[a1];[0:a][a1]amix=inputs=2:duration=longest", lowpassHz)
}

// Mix applies SmartMixFilter to primary and secondary, writing out. The
// output container follows out's extension.
func (r *Runner) Mix(ctx context.Context, primary, secondary, out string, lowpassHz int) error {
	if err := r.checkResources(filepath.Dir(out)); err != nil {
		return err
	}

	args := []string{"-y", "-hide_banner", "-nostats", "-i", primary, "-i", secondary,
		"-filter_complex", SmartMixFilter(lowpassHz)}
	if format, err := media.ParseFormat(filepath.Ext(out), media.DownloadFormats); err == nil {
		args = append(args, codecArgs(format)...)
	}
	args = append(args, out)

	output, err := r.exec.Run(ctx, r.ffmpeg, args, nil)
	if err != nil {
		os.Remove(out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg mix failed: %w (%s)", err, executor.LastLine(output))
	}
	return nil
}

// WriteMetadata remuxes path in place with title, artist and album tags and,
// when coverPath is set and the container supports it, an attached cover.
func (r *Runner) WriteMetadata(ctx context.Context, path string, format media.Format, meta *media.SongMetadata, coverPath string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tagging")

	args := []string{"-y", "-hide_banner", "-nostats", "-i", path}
	withCover := coverPath != "" && supportsCover(format)
	if withCover {
		args = append(args, "-i", coverPath, "-map", "0:a", "-map", "1:v", "-c:v", "copy",
			"-disposition:v:0", "attached_pic")
	} else {
		args = append(args, "-map", "0:a")
	}
	args = append(args, "-c:a", "copy",
		"-metadata", "title="+meta.Title,
		"-metadata", "artist="+strings.Join(meta.Artists, ", "))
	if meta.Album != "" {
		args = append(args, "-metadata", "album="+meta.Album)
	}
	args = append(args, "-f", muxer(format), tmp)

	output, err := r.exec.Run(ctx, r.ffmpeg, args, nil)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg metadata remux failed: %w (%s)", err, executor.LastLine(output))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (r *Runner) checkResources(dir string) error {
	if r.gate == nil {
		return nil
	}
	if err := r.gate.Check(dir); err != nil {
		return fmt.Errorf("insufficient system resources: %w", err)
	}
	return nil
}

func codecArgs(format media.Format) []string {
	switch format {
	case media.FormatMP3:
		return []string{"-c:a", "libmp3lame", "-q:a", "0"}
	case media.FormatWAV:
		return []string{"-c:a", "pcm_s16le"}
	case media.FormatFLAC:
		return []string{"-c:a", "flac"}
	case media.FormatOpus:
		return []string{"-c:a", "libopus", "-b:a", "160k"}
	default:
		return []string{"-c:a", "aac", "-b:a", "256k"}
	}
}

func muxer(format media.Format) string {
	switch format {
	case media.FormatM4A:
		return "ipod"
	default:
		return string(format)
	}
}

func supportsCover(format media.Format) bool {
	switch format {
	case media.FormatM4A, media.FormatMP3, media.FormatFLAC:
		return true
	default:
		return false
	}
}
