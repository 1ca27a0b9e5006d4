// Package tag embeds song metadata and cover art into finished audio files.
package tag

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/charmbracelet/log"

	"splitmix/media"
)

// maxArtworkBytes bounds cover downloads.
const maxArtworkBytes = 10 << 20

// ContainerWriter tags containers other than MP3, typically by remuxing.
type ContainerWriter interface {
	WriteMetadata(ctx context.Context, path string, format media.Format, meta *media.SongMetadata, coverPath string) error
}

// Embedder writes ID3 frames for MP3 and delegates other containers.
type Embedder struct {
	writer ContainerWriter
	client *http.Client
	logger *log.Logger
}

func NewEmbedder(writer ContainerWriter, client *http.Client, logger *log.Logger) *Embedder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Embedder{writer: writer, client: client, logger: logger}
}

// Embed tags path. Artwork problems are logged and the text tags are still written.
func (e *Embedder) Embed(ctx context.Context, path string, format media.Format, meta *media.SongMetadata) error {
	if meta == nil {
		return nil
	}

	artwork, err := e.fetchArtwork(ctx, meta.ArtworkURL)
	if err != nil {
		e.logger.Warn("skipping artwork", "url", meta.ArtworkURL, "err", err)
		artwork = nil
	}

	if format == media.FormatMP3 {
		if err := writeID3(path, meta, artwork); err != nil {
			return media.Wrap(media.KindConversion, err, "embed ID3 tags")
		}
		return nil
	}

	if e.writer == nil {
		return media.Errorf(media.KindConversion, "no metadata writer for %s", format)
	}
	coverPath := ""
	if len(artwork) > 0 {
		cover, err := os.CreateTemp(filepath.Dir(path), ".cover_*"+artworkExt(artwork))
		if err != nil {
			return media.Wrap(media.KindConversion, err, "stage artwork")
		}
		coverPath = cover.Name()
		defer os.Remove(coverPath)
		_, werr := cover.Write(artwork)
		if cerr := cover.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return media.Wrap(media.KindConversion, werr, "stage artwork")
		}
	}
	if err := e.writer.WriteMetadata(ctx, path, format, meta, coverPath); err != nil {
		return media.Wrap(media.KindConversion, err, "embed metadata")
	}
	return nil
}

func (e *Embedder) fetchArtwork(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artwork request failed, status: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxArtworkBytes {
		return nil, fmt.Errorf("artwork exceeds %d bytes", maxArtworkBytes)
	}
	return data, nil
}

func writeID3(path string, meta *media.SongMetadata, artwork []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(meta.Title)
	tag.SetArtist(strings.Join(meta.Artists, ", "))
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}
	if len(meta.Artists) > 0 {
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, meta.Artists[0])
	}

	if len(artwork) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    http.DetectContentType(artwork),
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     artwork,
		})
	}
	return tag.Save()
}

func artworkExt(data []byte) string {
	if http.DetectContentType(data) == "image/png" {
		return ".png"
	}
	return ".jpg"
}
