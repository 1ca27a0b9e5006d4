// Package resolve maps user references (streaming links, video links, direct
// audio URLs and local paths) to something the acquirer can fetch.
package resolve

import (
	"context"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/charmbracelet/log"

	"splitmix/media"
)

type Kind int

const (
	StreamingMatch Kind = iota + 1
	DirectMedia
	LocalFile
)

func (k Kind) String() string {
	switch k {
	case StreamingMatch:
		return "streaming"
	case DirectMedia:
		return "direct"
	case LocalFile:
		return "local"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving a reference. Metadata is set only
// for StreamingMatch; Path only for LocalFile.
type Resolution struct {
	Kind     Kind
	Metadata *media.SongMetadata
	MediaURL string
	Path     string
	// Title names the source when no metadata exists.
	Title string
}

// MetadataProvider looks up song metadata for a streaming reference.
type MetadataProvider interface {
	Resolve(ctx context.Context, reference string) (*media.SongMetadata, error)
}

// SearchProvider finds a playable media URL for a song.
type SearchProvider interface {
	FindPlayableURL(ctx context.Context, meta *media.SongMetadata) (string, error)
}

// TitleProvider fetches a human title for a video-platform URL.
type TitleProvider interface {
	Title(ctx context.Context, mediaURL string) (string, error)
}

type Resolver struct {
	metadata MetadataProvider
	search   SearchProvider
	titles   TitleProvider
	logger   *log.Logger
}

// New builds a Resolver. metadata may be nil, in which case streaming
// references are rejected; titles may be nil.
func New(metadata MetadataProvider, search SearchProvider, titles TitleProvider, logger *log.Logger) *Resolver {
	return &Resolver{metadata: metadata, search: search, titles: titles, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, reference string) (Resolution, error) {
	ref := CleanReference(reference)
	if ref == "" {
		return Resolution{}, media.Errorf(media.KindInput, "empty reference")
	}

	switch {
	case IsStreaming(ref):
		return r.resolveStreaming(ctx, ref)
	case IsVideoPlatform(ref):
		res := Resolution{Kind: DirectMedia, MediaURL: ref, Title: urlTitle(ref)}
		if r.titles != nil {
			title, err := r.titles.Title(ctx, ref)
			switch {
			case err != nil:
				r.logger.Warn("could not fetch video title", "url", ref, "err", err)
			case title != "":
				res.Title = title
			}
		}
		return res, nil
	case IsDirectAudio(ref):
		return Resolution{Kind: DirectMedia, MediaURL: ref, Title: urlTitle(ref)}, nil
	}

	if p, ok := LocalPath(ref); ok {
		return Resolution{Kind: LocalFile, Path: p, Title: media.BaseName(p)}, nil
	}
	return Resolution{}, media.Errorf(media.KindInput, "%q is neither a supported link nor an existing file", ref)
}

func (r *Resolver) resolveStreaming(ctx context.Context, ref string) (Resolution, error) {
	if r.metadata == nil {
		return Resolution{}, media.Errorf(media.KindInput, "streaming resolution not configured (set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET)")
	}
	meta, err := r.metadata.Resolve(ctx, ref)
	if err != nil {
		return Resolution{}, media.Ensure(media.KindResolution, err, "metadata lookup failed")
	}
	r.logger.Info("found streaming song", "song", meta.DisplayName())

	if r.search == nil {
		return Resolution{}, media.Errorf(media.KindInput, "media search not configured")
	}
	mediaURL, err := r.search.FindPlayableURL(ctx, meta)
	if err != nil {
		return Resolution{}, media.Ensure(media.KindResolution, err, "no playable match")
	}
	r.logger.Info("matched playable media", "url", mediaURL)
	return Resolution{Kind: StreamingMatch, Metadata: meta, MediaURL: mediaURL, Title: meta.DisplayName()}, nil
}

// CleanReference trims whitespace and the quotes file managers add to pasted paths.
func CleanReference(reference string) string {
	return strings.Trim(strings.TrimSpace(reference), `"'`)
}

// LocalPath reports whether reference names an existing regular file.
func LocalPath(reference string) (string, bool) {
	ref := CleanReference(reference)
	if ref == "" || strings.Contains(ref, "://") {
		return "", false
	}
	info, err := os.Stat(ref)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ref, true
}

var videoHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".flac": true, ".ogg": true, ".opus": true, ".aac": true,
}

func IsStreaming(ref string) bool {
	if strings.HasPrefix(ref, "spotify:track:") {
		return true
	}
	u, ok := httpURL(ref)
	return ok && strings.EqualFold(u.Hostname(), "open.spotify.com")
}

func IsVideoPlatform(ref string) bool {
	u, ok := httpURL(ref)
	return ok && videoHosts[strings.ToLower(u.Hostname())]
}

func IsDirectAudio(ref string) bool {
	u, ok := httpURL(ref)
	return ok && audioExts[strings.ToLower(path.Ext(u.Path))]
}

func httpURL(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func urlTitle(ref string) string {
	u, ok := httpURL(ref)
	if !ok {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return u.Hostname()
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
