// Package separate splits a finished song into its four stems and publishes
// them all at once.
package separate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"splitmix/media"
	"splitmix/resources"
)

// Buffers holds one encoded stream per stem until Release is called.
type Buffers interface {
	Stems() []media.StemName
	Open(stem media.StemName) (io.ReadCloser, error)
	Release() error
}

// Model runs a source-separation model. onProgress receives the processed
// offset and total length in seconds.
type Model interface {
	Separate(ctx context.Context, inputPath string, format media.Format, onProgress func(offset, length float64)) (Buffers, error)
}

type Separator struct {
	model  Model
	gate   resources.Gate
	logger *log.Logger
}

func New(model Model, gate resources.Gate, logger *log.Logger) *Separator {
	return &Separator{model: model, gate: gate, logger: logger}
}

// StemPath names the file a stem of base is written to.
func StemPath(outDir, base string, stem media.StemName, format media.Format) string {
	return filepath.Join(outDir, fmt.Sprintf("%s_%s%s", base, stem, format.Ext()))
}

// Separate writes all four stems of input to outDir, or none of them.
func (s *Separator) Separate(ctx context.Context, input, outDir string, format media.Format, sink media.ProgressFunc) (media.StemSet, error) {
	if !format.In(media.StemFormats) {
		_, err := media.ParseFormat(string(format), media.StemFormats)
		return nil, err
	}
	if info, err := os.Stat(input); err != nil || !info.Mode().IsRegular() {
		return nil, media.Errorf(media.KindSeparation, "input %s is not a readable file", input)
	}
	if s.gate != nil {
		if err := s.gate.Check(outDir); err != nil {
			return nil, media.Wrap(media.KindSeparation, err, "insufficient system resources")
		}
	}

	logger := s.logger.With("input", input)
	logger.Info("separating stems", "format", format)

	buffers, err := s.model.Separate(ctx, input, format, func(offset, length float64) {
		if sink != nil {
			sink(media.Separating{SegmentOffset: offset, AudioLength: length})
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, media.Ensure(media.KindSeparation, err, "separation model failed")
	}
	defer func() {
		if err := buffers.Release(); err != nil {
			logger.Warn("could not release model scratch space", "err", err)
		}
	}()

	produced := make(media.StemSet)
	for _, stem := range buffers.Stems() {
		produced[stem] = string(stem)
	}
	if missing := produced.Missing(); len(missing) > 0 {
		return nil, media.Errorf(media.KindSeparation, "model produced an incomplete stem set: %v missing", missing)
	}

	stems, err := s.publish(ctx, buffers, outDir, media.BaseName(input), format)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, media.Ensure(media.KindSeparation, err, "write stems")
	}
	logger.Info("stems written", "dir", outDir)
	return stems, nil
}

// publish copies every buffer to a .part file and renames them only after
// all four copies succeeded.
func (s *Separator) publish(ctx context.Context, buffers Buffers, outDir, base string, format media.Format) (media.StemSet, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	parts := make(map[media.StemName]string, len(media.Stems))
	var renamed []string
	cleanup := func() {
		for _, p := range parts {
			os.Remove(p)
		}
		for _, p := range renamed {
			os.Remove(p)
		}
	}

	for _, stem := range media.Stems {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		part := StemPath(outDir, base, stem, format) + ".part"
		parts[stem] = part
		if err := copyStem(buffers, stem, part); err != nil {
			cleanup()
			return nil, fmt.Errorf("write %s stem: %w", stem, err)
		}
	}

	stems := make(media.StemSet, len(media.Stems))
	for _, stem := range media.Stems {
		final := StemPath(outDir, base, stem, format)
		if err := os.Rename(parts[stem], final); err != nil {
			cleanup()
			return nil, fmt.Errorf("finalize %s stem: %w", stem, err)
		}
		renamed = append(renamed, final)
		delete(parts, stem)
		stems[stem] = final
	}
	return stems, nil
}

func copyStem(buffers Buffers, stem media.StemName, dest string) error {
	src, err := buffers.Open(stem)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty %s stem", stem)
	}
	return err
}

// dirBuffers serves stems a model wrote into a scratch directory.
type dirBuffers struct {
	scratch string
	files   map[media.StemName]string
}

func (d *dirBuffers) Stems() []media.StemName {
	var stems []media.StemName
	for _, stem := range media.Stems {
		if _, ok := d.files[stem]; ok {
			stems = append(stems, stem)
		}
	}
	return stems
}

func (d *dirBuffers) Open(stem media.StemName) (io.ReadCloser, error) {
	p, ok := d.files[stem]
	if !ok {
		return nil, fmt.Errorf("no %s stem", stem)
	}
	return os.Open(p)
}

func (d *dirBuffers) Release() error { return os.RemoveAll(d.scratch) }

// collect maps each stem to its file under dir when it exists.
func collect(scratch, dir string, name func(media.StemName) string) *dirBuffers {
	b := &dirBuffers{scratch: scratch, files: make(map[media.StemName]string)}
	for _, stem := range media.Stems {
		p := filepath.Join(dir, name(stem))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			b.files[stem] = p
		}
	}
	return b
}
