// Package acquire downloads resolved media into a staging file.
package acquire

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"splitmix/media"
	"splitmix/resolve"
)

// Downloader writes mediaURL to dest, reporting cumulative bytes. A total
// of zero or less means the size is unknown.
type Downloader interface {
	Download(ctx context.Context, mediaURL, dest string, onProgress func(done, total int64)) error
}

// Acquirer routes video-platform links to one downloader and plain
// HTTP(S) media to another.
type Acquirer struct {
	video  Downloader
	direct Downloader
	logger *log.Logger
}

func New(video, direct Downloader, logger *log.Logger) *Acquirer {
	return &Acquirer{video: video, direct: direct, logger: logger}
}

func (a *Acquirer) selectDownloader(mediaURL string) Downloader {
	if resolve.IsVideoPlatform(mediaURL) {
		return a.video
	}
	return a.direct
}

// Acquire downloads mediaURL to stagingPath. On failure nothing is left at
// stagingPath. A final event with done == total always follows success.
func (a *Acquirer) Acquire(ctx context.Context, mediaURL, stagingPath string, sink media.ProgressFunc) error {
	d := a.selectDownloader(mediaURL)
	if d == nil {
		return media.Errorf(media.KindInput, "no downloader configured for %s", mediaURL)
	}

	logger := a.logger.With("url", mediaURL)
	logger.Info("downloading", "staging", stagingPath)

	err := d.Download(ctx, mediaURL, stagingPath, func(done, total int64) {
		if sink != nil {
			sink(media.Downloading{BytesDone: done, BytesTotal: total})
		}
		if total > 0 {
			logger.Debug("downloaded", "progress", humanize.Bytes(uint64(max(done, 0)))+" / "+humanize.Bytes(uint64(total)))
		}
	})
	if err != nil {
		os.Remove(stagingPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return media.Ensure(media.KindDownload, err, "download failed")
	}

	info, err := os.Stat(stagingPath)
	if err != nil {
		return media.Wrap(media.KindDownload, err, "downloaded file missing")
	}
	if info.Size() == 0 {
		os.Remove(stagingPath)
		return media.Errorf(media.KindDownload, "downloaded file is empty")
	}

	if sink != nil {
		sink(media.Downloading{BytesDone: info.Size(), BytesTotal: info.Size()})
	}
	logger.Info("download complete", "size", humanize.Bytes(uint64(info.Size())))
	return nil
}
