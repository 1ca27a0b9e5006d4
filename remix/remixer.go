// Package remix blends two stems into a "smart mix": the secondary stem is
// low-passed and laid under the primary.
package remix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"splitmix/media"
	"splitmix/resources"
)

// MixTool runs the filter graph; ffmpeg.Runner satisfies it.
type MixTool interface {
	Mix(ctx context.Context, primary, secondary, out string, lowpassHz int) error
}

type Remixer struct {
	tool      MixTool
	primary   media.StemName
	secondary media.StemName
	lowpassHz int
	gate      resources.Gate
	logger    *log.Logger
}

func New(tool MixTool, primary, secondary media.StemName, lowpassHz int, gate resources.Gate, logger *log.Logger) *Remixer {
	return &Remixer{
		tool:      tool,
		primary:   primary,
		secondary: secondary,
		lowpassHz: lowpassHz,
		gate:      gate,
		logger:    logger,
	}
}

// OutputPath names the smart mix of base.
func OutputPath(outDir, base string, format media.Format) string {
	return filepath.Join(outDir, base+"_smartmix"+format.Ext())
}

// Remix mixes the configured primary and secondary stems of stems into out.
func (r *Remixer) Remix(ctx context.Context, stems media.StemSet, out string) error {
	return r.Mix(ctx, stems[r.primary], stems[r.secondary], out)
}

// Mix fails without running the tool when either input is missing. A failed
// mix leaves nothing at out.
func (r *Remixer) Mix(ctx context.Context, primary, secondary, out string) error {
	for _, in := range []string{primary, secondary} {
		if in == "" {
			return media.Errorf(media.KindRemix, "stem input missing")
		}
		info, err := os.Stat(in)
		if err != nil || !info.Mode().IsRegular() {
			return media.Errorf(media.KindRemix, "stem input %s does not exist", in)
		}
	}
	if r.gate != nil {
		if err := r.gate.Check(filepath.Dir(out)); err != nil {
			return media.Wrap(media.KindRemix, err, "insufficient system resources")
		}
	}

	r.logger.Info("mixing stems", "primary", filepath.Base(primary), "secondary", filepath.Base(secondary),
		"lowpass", fmt.Sprintf("%dHz", r.lowpassHz))
	if err := r.tool.Mix(ctx, primary, secondary, out, r.lowpassHz); err != nil {
		os.Remove(out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return media.Ensure(media.KindRemix, err, "mix failed")
	}
	r.logger.Info("smart mix written", "output", out)
	return nil
}
