package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"splitmix/config"
	"splitmix/executor"
	"splitmix/media"
)

// progressPrefix tags the lines produced by our --progress-template.
const progressPrefix = "splitmix-progress"

// YtdlpDownloader extracts audio from video-platform links.
type YtdlpDownloader struct {
	bin     string
	format  media.Format
	cookies []string
	exec    executor.Executor
}

// NewYtdlpDownloader requires the binary and an explicit auth source.
func NewYtdlpDownloader(bin string, format media.Format, authSource string, ex executor.Executor) (*YtdlpDownloader, error) {
	path, err := ex.LookPath(bin)
	if err != nil {
		return nil, media.Errorf(media.KindInput, "yt-dlp binary not found or not in PATH: %s", bin)
	}
	cookies, err := CookieArgs(authSource)
	if err != nil {
		return nil, err
	}
	return &YtdlpDownloader{bin: path, format: format, cookies: cookies, exec: ex}, nil
}

// CookieArgs maps an auth source to yt-dlp flags: an existing file is a
// cookies.txt, "none" disables cookies, anything else names a browser.
func CookieArgs(authSource string) ([]string, error) {
	src := strings.TrimSpace(authSource)
	switch {
	case src == "":
		return nil, media.Errorf(media.KindInput, "an auth source is required (browser name, cookie file, or %q)", config.AuthSourceNone)
	case strings.EqualFold(src, config.AuthSourceNone):
		return nil, nil
	}
	if info, err := os.Stat(src); err == nil && info.Mode().IsRegular() {
		return []string{"--cookies", src}, nil
	}
	if strings.ContainsAny(src, `/\`) {
		return nil, media.Errorf(media.KindInput, "cookie file %s does not exist", src)
	}
	return []string{"--cookies-from-browser", src}, nil
}

func (y *YtdlpDownloader) Download(ctx context.Context, mediaURL, dest string, onProgress func(done, total int64)) error {
	// yt-dlp appends the extension itself after extraction.
	template := strings.TrimSuffix(dest, filepath.Ext(dest)) + ".%(ext)s"
	f := string(y.format)
	args := []string{
		"--no-warnings", "--no-playlist", "--newline",
		"-f", f + "/bestaudio/best",
		"-x", "--audio-format", f,
		"--progress-template", "download:" + progressPrefix + " %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s",
		"-o", template,
	}
	args = append(args, y.cookies...)
	args = append(args, mediaURL)

	output, err := y.exec.Run(ctx, y.bin, args, func(line string) {
		if done, total, ok := parseProgress(line); ok && onProgress != nil {
			onProgress(done, total)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("yt-dlp failed: %w (%s)", err, executor.LastLine(output))
	}
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("yt-dlp produced no %s file: %w", f, err)
	}
	return nil
}

// parseProgress reads "<prefix> done total estimate"; NA fields are unknown.
func parseProgress(line string) (done, total int64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != progressPrefix {
		return 0, 0, false
	}
	done, err := parseBytes(fields[1])
	if err != nil {
		return 0, 0, false
	}
	total, err = parseBytes(fields[2])
	if err != nil || total <= 0 {
		total, _ = parseBytes(fields[3])
	}
	return done, total, true
}

func parseBytes(s string) (int64, error) {
	if s == "NA" || s == "None" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return int64(f), err
}
