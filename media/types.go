// Package media holds the types shared by every pipeline stage: song
// metadata, audio formats, stems, progress events and the error taxonomy.
package media

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatM4A  Format = "m4a"
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatOpus Format = "opus"
)

var (
	// DownloadFormats are the containers a converted song may be written in.
	DownloadFormats = []Format{FormatM4A, FormatMP3, FormatWAV, FormatFLAC, FormatOpus}
	// StemFormats are the containers the separator may write stems in.
	StemFormats = []Format{FormatMP3, FormatWAV, FormatFLAC}
)

// ParseFormat normalizes s and checks it against allowed.
func ParseFormat(s string, allowed []Format) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	if !f.In(allowed) {
		return "", Errorf(KindInput, "unsupported format %q (allowed: %s)", s, joinFormats(allowed))
	}
	return f, nil
}

func (f Format) In(set []Format) bool {
	for _, candidate := range set {
		if f == candidate {
			return true
		}
	}
	return false
}

func (f Format) Ext() string { return "." + string(f) }

func joinFormats(set []Format) string {
	parts := make([]string, len(set))
	for i, f := range set {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// SongMetadata describes a track looked up on a streaming service.
type SongMetadata struct {
	Title           string   `json:"title"`
	Artists         []string `json:"artists"`
	Album           string   `json:"album,omitempty"`
	DurationSeconds float64  `json:"durationSeconds"`
	ArtworkURL      string   `json:"artworkUrl,omitempty"`
}

// DisplayName renders "Artist A, Artist B - Title".
func (m *SongMetadata) DisplayName() string {
	if len(m.Artists) == 0 {
		return m.Title
	}
	return fmt.Sprintf("%s - %s", strings.Join(m.Artists, ", "), m.Title)
}

type StemName string

const (
	StemVocals StemName = "vocals"
	StemDrums  StemName = "drums"
	StemBass   StemName = "bass"
	StemOther  StemName = "other"
)

// Stems is the fixed four-stem layout every separation produces.
var Stems = []StemName{StemVocals, StemDrums, StemBass, StemOther}

func ParseStem(s string) (StemName, error) {
	name := StemName(strings.ToLower(strings.TrimSpace(s)))
	for _, stem := range Stems {
		if stem == name {
			return name, nil
		}
	}
	return "", Errorf(KindInput, "unknown stem %q", s)
}

// StemSet maps each stem to the file it was written to.
type StemSet map[StemName]string

// Missing lists the stems with no recorded path.
func (s StemSet) Missing() []StemName {
	var missing []StemName
	for _, stem := range Stems {
		if s[stem] == "" {
			missing = append(missing, stem)
		}
	}
	return missing
}
