// Package convert turns a staged or local audio file into the finished,
// tagged output file.
package convert

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"splitmix/media"
)

// Encoder transcodes in to out; ffmpeg.Runner satisfies it.
type Encoder interface {
	Convert(ctx context.Context, in, out string, format media.Format, onProgress func(percent float64)) error
}

// MetadataEmbedder tags a finished file; tag.Embedder satisfies it.
type MetadataEmbedder interface {
	Embed(ctx context.Context, path string, format media.Format, meta *media.SongMetadata) error
}

type Request struct {
	Input     string
	OutputDir string
	Format    media.Format
	// Metadata is nil for local files and direct media links.
	Metadata *media.SongMetadata
	// Title names the output when there is no metadata.
	Title string
	// Prefix, when set, replaces the computed base name.
	Prefix string
}

type Converter struct {
	encoder  Encoder
	embedder MetadataEmbedder
	template string
	logger   *log.Logger
}

func New(encoder Encoder, embedder MetadataEmbedder, template string, logger *log.Logger) *Converter {
	if template == "" {
		template = media.DefaultFilenameTemplate
	}
	return &Converter{encoder: encoder, embedder: embedder, template: template, logger: logger}
}

// OutputPath is where Convert will place the finished file for req.
func (c *Converter) OutputPath(req Request) (string, error) {
	var (
		name string
		err  error
	)
	if req.Prefix != "" {
		name, err = media.RenderFilename("", nil, req.Prefix, req.Format)
	} else {
		fallback := req.Title
		if fallback == "" {
			fallback = media.BaseName(req.Input)
		}
		name, err = media.RenderFilename(c.template, req.Metadata, fallback, req.Format)
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(req.OutputDir, name), nil
}

// Convert encodes req.Input and embeds metadata before the result appears
// under its final name. It returns the final path.
func (c *Converter) Convert(ctx context.Context, req Request, sink media.ProgressFunc) (string, error) {
	last := -1.0
	report := func(percent float64) {
		if percent <= last {
			return
		}
		last = percent
		if sink != nil {
			sink(media.Converting{Percent: percent})
		}
	}

	out, err := c.OutputPath(req)
	if err != nil {
		return "", media.Wrap(media.KindConversion, err, "output name")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", media.Wrap(media.KindConversion, err, "create output directory")
	}

	if samePath(req.Input, out) {
		c.logger.Info("input already in place, skipping encode", "path", out)
		report(100)
		return out, nil
	}

	part := out + ".part"
	logger := c.logger.With("output", out)
	logger.Info("converting", "input", req.Input, "format", req.Format)

	report(0)
	if err := c.encoder.Convert(ctx, req.Input, part, req.Format, report); err != nil {
		os.Remove(part)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", media.Ensure(media.KindConversion, err, "encode failed")
	}

	if req.Metadata != nil && c.embedder != nil {
		if err := c.embedder.Embed(ctx, part, req.Format, req.Metadata); err != nil {
			os.Remove(part)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", media.Ensure(media.KindConversion, err, "embed metadata")
		}
	}

	if err := os.Rename(part, out); err != nil {
		os.Remove(part)
		return "", media.Wrap(media.KindConversion, err, "finalize output")
	}
	report(100)
	logger.Info("conversion complete")
	return out, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
