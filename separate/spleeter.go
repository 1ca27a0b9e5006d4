package separate

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"splitmix/executor"
	"splitmix/media"
)

// Spleeter drives the spleeter command line with the 4stems model. It
// reports no incremental progress.
type Spleeter struct {
	bin     string
	scratch string
	exec    executor.Executor
	logger  *log.Logger
}

func NewSpleeter(bin, scratch string, ex executor.Executor, logger *log.Logger) (*Spleeter, error) {
	path, err := ex.LookPath(bin)
	if err != nil {
		return nil, media.Errorf(media.KindInput, "spleeter binary not found or not in PATH: %s", bin)
	}
	return &Spleeter{bin: path, scratch: scratch, exec: ex, logger: logger}, nil
}

func (s *Spleeter) Separate(ctx context.Context, inputPath string, format media.Format, onProgress func(offset, length float64)) (Buffers, error) {
	if err := os.MkdirAll(s.scratch, 0o755); err != nil {
		return nil, err
	}
	work, err := os.MkdirTemp(s.scratch, "spleeter-*")
	if err != nil {
		return nil, err
	}

	codec := string(format)
	args := []string{"separate", "-p", "spleeter:4stems", "-o", work,
		"-c", codec, "-f", "{instrument}.{codec}", inputPath}
	output, err := s.exec.Run(ctx, s.bin, args, nil)
	if err != nil {
		os.RemoveAll(work)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("spleeter failed: %w (%s)", err, executor.LastLine(output))
	}
	if onProgress != nil {
		onProgress(1, 1)
	}

	return collect(work, work, func(stem media.StemName) string {
		return string(stem) + "." + codec
	}), nil
}
