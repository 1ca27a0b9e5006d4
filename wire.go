package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"splitmix/acquire"
	"splitmix/config"
	"splitmix/convert"
	"splitmix/executor"
	"splitmix/ffmpeg"
	"splitmix/logging"
	"splitmix/media"
	"splitmix/remix"
	"splitmix/resolve"
	"splitmix/resources"
	"splitmix/separate"
	"splitmix/tag"
	"splitmix/task"
)

// loadConfig reads the config file and environment, then applies the
// global flags on top.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, cmd *cli.Command) {
	override := func(flag string, dst *string) {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	override("output", &cfg.OutputDirectory)
	override("auth-source", &cfg.AuthSource)
	override("format", &cfg.TargetDownloadFormat)
	override("stem-format", &cfg.TargetStemFormat)
	override("log-level", &cfg.LogLevel)
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	return logging.New(os.Stderr, cfg.LogLevel)
}

func newResolver(ctx context.Context, cfg *config.Config, ex executor.Executor, logger *log.Logger) (*resolve.Resolver, error) {
	search, err := resolve.NewYtdlpSearch(cfg.YtdlpBin, ex, cfg.SearchCandidates, cfg.SearchDurationTolerance, logger)
	if err != nil {
		return nil, err
	}

	var metadata resolve.MetadataProvider
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		spotify, err := resolve.NewSpotifyProvider(ctx, resolve.SpotifyOptions{
			ClientID:      cfg.SpotifyClientID,
			ClientSecret:  cfg.SpotifyClientSecret,
			RatePerSecond: cfg.SpotifyRate,
		})
		if err != nil {
			return nil, err
		}
		metadata = spotify
	} else {
		logger.Debug("spotify credentials not set, streaming links are disabled")
	}
	return resolve.New(metadata, search, search, logger), nil
}

// newManager builds every stage collaborator and the task manager over them.
// Missing tools surface here as input errors.
func newManager(ctx context.Context, cfg *config.Config, logger *log.Logger) (*task.Manager, error) {
	ex := executor.Binary{Logger: logger}
	gate := resources.NewChecker(cfg, logger)

	resolver, err := newResolver(ctx, cfg, ex, logger)
	if err != nil {
		return nil, err
	}

	video, err := acquire.NewYtdlpDownloader(cfg.YtdlpBin, cfg.DownloadFormat(), cfg.AuthSource, ex)
	if err != nil {
		return nil, err
	}
	direct := acquire.NewHTTPDownloader(&http.Client{}, cfg.MaxInputSize)

	runner, err := ffmpeg.NewRunner(cfg, ex, gate, logger)
	if err != nil {
		return nil, err
	}
	embedder := tag.NewEmbedder(runner, &http.Client{Timeout: 30 * time.Second}, logger)

	stages := task.Stages{
		Resolver:  resolver,
		Acquirer:  acquire.New(video, direct, logger),
		Converter: convert.New(runner, embedder, cfg.FilenameTemplate, logger),
	}

	// Without a separator, convert tasks still work; split and mix are refused at Start.
	model, err := separate.NewModel(cfg, ex, logger)
	if err != nil {
		logger.Warn("stem separation unavailable", "err", err)
	} else {
		primary, _ := media.ParseStem(cfg.RemixPrimary)
		secondary, _ := media.ParseStem(cfg.RemixSecondary)
		stages.Separator = separate.New(model, gate, logger)
		stages.Remixer = remix.New(runner, primary, secondary, cfg.RemixLowpassHz, gate, logger)
	}

	return task.NewManager(cfg, stages, logger)
}
