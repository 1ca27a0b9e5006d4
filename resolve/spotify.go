package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"splitmix/media"
)

const (
	spotifyAPIURL   = "https://api.spotify.com/v1"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	// RatePerSecond paces API calls; zero disables pacing.
	RatePerSecond float64
	// APIURL and TokenURL override the public endpoints.
	APIURL   string
	TokenURL string
}

// SpotifyProvider resolves track links with the client-credentials flow.
type SpotifyProvider struct {
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSpotifyProvider fails with an input error when credentials are absent.
// ctx scopes token refreshes.
func NewSpotifyProvider(ctx context.Context, opts SpotifyOptions) (*SpotifyProvider, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, media.Errorf(media.KindInput, "spotify client id and secret are required")
	}
	if opts.APIURL == "" {
		opts.APIURL = spotifyAPIURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &SpotifyProvider{
		apiURL:  strings.TrimSuffix(opts.APIURL, "/"),
		client:  cc.Client(ctx),
		limiter: limiter,
	}, nil
}

type spotifyTrack struct {
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	} `json:"album"`
}

func (s *SpotifyProvider) Resolve(ctx context.Context, reference string) (*media.SongMetadata, error) {
	id, err := TrackID(reference)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/tracks/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, media.Wrap(media.KindResolution, err, "spotify request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, media.Errorf(media.KindResolution, "spotify track %s not found", id)
	case resp.StatusCode != http.StatusOK:
		return nil, media.Errorf(media.KindResolution, "spotify request failed, status: %s", resp.Status)
	}

	var track spotifyTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, media.Wrap(media.KindResolution, err, "decode spotify track")
	}

	meta := &media.SongMetadata{
		Title:           track.Name,
		Album:           track.Album.Name,
		DurationSeconds: float64(track.DurationMS) / 1000,
	}
	for _, a := range track.Artists {
		meta.Artists = append(meta.Artists, a.Name)
	}
	best := 0
	for _, img := range track.Album.Images {
		if area := img.Width * img.Height; area >= best {
			best = area
			meta.ArtworkURL = img.URL
		}
	}
	if meta.Title == "" {
		return nil, media.Errorf(media.KindResolution, "spotify track %s has no title", id)
	}
	return meta, nil
}

// TrackID extracts the track id from an open.spotify.com link or spotify:track: URI.
func TrackID(reference string) (string, error) {
	if id, ok := strings.CutPrefix(reference, "spotify:track:"); ok && id != "" {
		return id, nil
	}
	u, err := url.Parse(reference)
	if err == nil {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i < len(parts)-1; i++ {
			if parts[i] == "track" && parts[i+1] != "" {
				return parts[i+1], nil
			}
		}
	}
	return "", media.Errorf(media.KindInput, "not a spotify track link: %s", reference)
}
