package separate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/charmbracelet/log"

	"splitmix/executor"
	"splitmix/media"
)

const DefaultDemucsModel = "htdemucs"

// tqdm prints "  42%|████▏     | 98.3/234.0 [00:21<00:29, 4.61seconds/s]".
var tqdmProgress = regexp.MustCompile(`(\d+(?:\.\d+)?)/(\d+(?:\.\d+)?)\s*\[`)

// Demucs drives the demucs command line.
type Demucs struct {
	bin     string
	model   string
	scratch string
	exec    executor.Executor
	logger  *log.Logger
}

// NewDemucs resolves bin up front; scratch is the parent for per-run work dirs.
func NewDemucs(bin, model, scratch string, ex executor.Executor, logger *log.Logger) (*Demucs, error) {
	path, err := ex.LookPath(bin)
	if err != nil {
		return nil, media.Errorf(media.KindInput, "demucs binary not found or not in PATH: %s", bin)
	}
	if model == "" {
		model = DefaultDemucsModel
	}
	return &Demucs{bin: path, model: model, scratch: scratch, exec: ex, logger: logger}, nil
}

func (d *Demucs) Separate(ctx context.Context, inputPath string, format media.Format, onProgress func(offset, length float64)) (Buffers, error) {
	if err := os.MkdirAll(d.scratch, 0o755); err != nil {
		return nil, err
	}
	work, err := os.MkdirTemp(d.scratch, "demucs-*")
	if err != nil {
		return nil, err
	}

	args := []string{"-n", d.model}
	switch format {
	case media.FormatMP3:
		args = append(args, "--mp3", "--mp3-bitrate", "320")
	case media.FormatFLAC:
		args = append(args, "--flac")
	}
	args = append(args, "-o", work, "--filename", "{stem}.{ext}", inputPath)

	output, err := d.exec.Run(ctx, d.bin, args, func(line string) {
		offset, length, ok := parseTqdm(line)
		if ok && onProgress != nil {
			onProgress(offset, length)
		}
	})
	if err != nil {
		os.RemoveAll(work)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("demucs failed: %w (%s)", err, executor.LastLine(output))
	}

	return collect(work, filepath.Join(work, d.model), func(stem media.StemName) string {
		return string(stem) + format.Ext()
	}), nil
}

func parseTqdm(line string) (offset, length float64, ok bool) {
	m := tqdmProgress.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	offset, err1 := strconv.ParseFloat(m[1], 64)
	length, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || length <= 0 {
		return 0, 0, false
	}
	return offset, length, true
}
