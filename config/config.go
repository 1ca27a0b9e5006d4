// Package config loads splitmix settings from defaults, an optional config
// file and SPLITMIX_* environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"splitmix/media"
)

// AuthSourceNone disables downloader cookies explicitly.
const AuthSourceNone = "none"

type Config struct {
	OutputDirectory      string `mapstructure:"OUTPUT_DIRECTORY"`
	TargetDownloadFormat string `mapstructure:"TARGET_DOWNLOAD_FORMAT"`
	TargetStemFormat     string `mapstructure:"TARGET_STEM_FORMAT"`
	AuthSource           string `mapstructure:"AUTH_SOURCE"`
	FilenameTemplate     string `mapstructure:"FILENAME_TEMPLATE"`

	FFBin           string `mapstructure:"FF_BIN"`
	FFProbeBin      string `mapstructure:"FFPROBE_BIN"`
	YtdlpBin        string `mapstructure:"YTDLP_BIN"`
	SeparatorEngine string `mapstructure:"SEPARATOR_ENGINE"`
	SeparatorBin    string `mapstructure:"SEPARATOR_BIN"`
	SeparatorModel  string `mapstructure:"SEPARATOR_MODEL"`
	EncoderArgs     string `mapstructure:"ENCODER_ARGS"`

	StagingDir    string        `mapstructure:"STAGING_DIR"`
	MaxInputSize  int64         `mapstructure:"MAX_INPUT_SIZE"`
	StageTimeout  time.Duration `mapstructure:"STAGE_TIMEOUT"`
	TaskRetention time.Duration `mapstructure:"TASK_RETENTION"`
	EventBuffer   int           `mapstructure:"EVENT_BUFFER"`

	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`

	SpotifyClientID     string  `mapstructure:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string  `mapstructure:"SPOTIFY_CLIENT_SECRET"`
	SpotifyRate         float64 `mapstructure:"SPOTIFY_RATE"`

	SearchCandidates        int           `mapstructure:"SEARCH_CANDIDATES"`
	SearchDurationTolerance time.Duration `mapstructure:"SEARCH_DURATION_TOLERANCE"`

	RemixPrimary   string `mapstructure:"REMIX_PRIMARY"`
	RemixSecondary string `mapstructure:"REMIX_SECONDARY"`
	RemixLowpassHz int    `mapstructure:"REMIX_LOWPASS_HZ"`

	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`
	Port       string `mapstructure:"PORT"`
	BaseURL    string `mapstructure:"BASE"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc parses Go duration strings such as "12m3s".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "200MB" into int64 bytes.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let the default decoder try.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("OUTPUT_DIRECTORY", "")
	vp.SetDefault("TARGET_DOWNLOAD_FORMAT", string(media.FormatM4A))
	vp.SetDefault("TARGET_STEM_FORMAT", string(media.FormatMP3))
	vp.SetDefault("AUTH_SOURCE", "")
	vp.SetDefault("FILENAME_TEMPLATE", media.DefaultFilenameTemplate)

	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("YTDLP_BIN", "yt-dlp")
	vp.SetDefault("SEPARATOR_ENGINE", "demucs")
	vp.SetDefault("SEPARATOR_BIN", "")
	vp.SetDefault("SEPARATOR_MODEL", "")
	vp.SetDefault("ENCODER_ARGS", "")

	vp.SetDefault("STAGING_DIR", "")
	vp.SetDefault("MAX_INPUT_SIZE", "500MB")
	vp.SetDefault("STAGE_TIMEOUT", "30m")
	vp.SetDefault("TASK_RETENTION", "2h")
	vp.SetDefault("EVENT_BUFFER", 64)

	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "512MB")
	vp.SetDefault("THROTTLE_FREEDISK", "1GB")

	vp.SetDefault("SPOTIFY_CLIENT_ID", "")
	vp.SetDefault("SPOTIFY_CLIENT_SECRET", "")
	vp.SetDefault("SPOTIFY_RATE", 5.0)

	vp.SetDefault("SEARCH_CANDIDATES", 5)
	vp.SetDefault("SEARCH_DURATION_TOLERANCE", "15s")

	vp.SetDefault("REMIX_PRIMARY", string(media.StemVocals))
	vp.SetDefault("REMIX_SECONDARY", string(media.StemDrums))
	vp.SetDefault("REMIX_LOWPASS_HZ", 200)

	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("LOG_LEVEL", "info")
}

// Load reads configuration. A non-empty path names the config file
// explicitly; otherwise splitmix_config.yaml is searched for.
func Load(path string) (*Config, error) {
	vp := viper.New()
	setDefaults(vp)

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		vp.SetConfigName("splitmix_config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			vp.AddConfigPath(filepath.Join(home, ".config", "splitmix"))
		}
		vp.AddConfigPath("/etc/splitmix/")

		if err := vp.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	vp.SetEnvPrefix("SPLITMIX")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once as an input error.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.OutputDirectory) == "" {
		problems = append(problems, "OUTPUT_DIRECTORY is required")
	}
	if _, err := media.ParseFormat(c.TargetDownloadFormat, media.DownloadFormats); err != nil {
		problems = append(problems, "TARGET_DOWNLOAD_FORMAT: "+err.Error())
	}
	if _, err := media.ParseFormat(c.TargetStemFormat, media.StemFormats); err != nil {
		problems = append(problems, "TARGET_STEM_FORMAT: "+err.Error())
	}
	if strings.TrimSpace(c.AuthSource) == "" {
		problems = append(problems, `AUTH_SOURCE is required (browser name, cookie file, or "none")`)
	}
	primary, perr := media.ParseStem(c.RemixPrimary)
	secondary, serr := media.ParseStem(c.RemixSecondary)
	switch {
	case perr != nil:
		problems = append(problems, "REMIX_PRIMARY: "+perr.Error())
	case serr != nil:
		problems = append(problems, "REMIX_SECONDARY: "+serr.Error())
	case primary == secondary:
		problems = append(problems, "REMIX_PRIMARY and REMIX_SECONDARY must differ")
	}
	if c.RemixLowpassHz <= 0 {
		problems = append(problems, "REMIX_LOWPASS_HZ must be positive")
	}
	if c.EventBuffer < 1 {
		problems = append(problems, "EVENT_BUFFER must be at least 1")
	}
	switch c.SeparatorEngine {
	case "demucs", "spleeter":
	default:
		problems = append(problems, "SEPARATOR_ENGINE must be demucs or spleeter")
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			problems = append(problems, "LOG_LEVEL: "+err.Error())
		}
	}
	if c.AuthEnable && c.AuthKey == "" {
		problems = append(problems, "AUTH_KEY is required when AUTH_ENABLE is set")
	}

	if len(problems) > 0 {
		return media.Errorf(media.KindInput, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DownloadFormat is the validated TARGET_DOWNLOAD_FORMAT.
func (c *Config) DownloadFormat() media.Format {
	f, _ := media.ParseFormat(c.TargetDownloadFormat, media.DownloadFormats)
	return f
}

// StemFormat is the validated TARGET_STEM_FORMAT.
func (c *Config) StemFormat() media.Format {
	f, _ := media.ParseFormat(c.TargetStemFormat, media.StemFormats)
	return f
}

// StagingPath returns STAGING_DIR or a directory under the system temp dir.
func (c *Config) StagingPath() string {
	if c.StagingDir != "" {
		return c.StagingDir
	}
	return filepath.Join(os.TempDir(), "splitmix-staging")
}

// SeparatorBinary defaults the separator executable to the engine name.
func (c *Config) SeparatorBinary() string {
	if c.SeparatorBin != "" {
		return c.SeparatorBin
	}
	return c.SeparatorEngine
}
