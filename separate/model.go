package separate

import (
	"github.com/charmbracelet/log"

	"splitmix/config"
	"splitmix/executor"
	"splitmix/media"
)

// NewModel builds the separation model SEPARATOR_ENGINE names. Model
// scratch space lives under the staging directory.
func NewModel(cfg *config.Config, ex executor.Executor, logger *log.Logger) (Model, error) {
	switch cfg.SeparatorEngine {
	case "", "demucs":
		return NewDemucs(cfg.SeparatorBinary(), cfg.SeparatorModel, cfg.StagingPath(), ex, logger)
	case "spleeter":
		return NewSpleeter(cfg.SeparatorBinary(), cfg.StagingPath(), ex, logger)
	default:
		return nil, media.Errorf(media.KindInput, "unknown separator engine %q", cfg.SeparatorEngine)
	}
}
