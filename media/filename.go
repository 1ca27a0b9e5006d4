package media

import (
	"path/filepath"
	"strings"
)

const DefaultFilenameTemplate = "{artists} - {title}.{output-ext}"

var unsafeFilenameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "-", "*", "_", "?", "", "\"", "'", "<", "_", ">", "_", "|", "_",
	"\x00", "",
)

// SanitizeFilename replaces characters that are not portable in file names.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, ". ")
}

// RenderFilename expands template against meta. Without metadata the
// sanitized fallback becomes the base name. The extension is always format's.
func RenderFilename(template string, meta *SongMetadata, fallback string, format Format) (string, error) {
	var base string
	if meta != nil && meta.Title != "" {
		if template == "" {
			template = DefaultFilenameTemplate
		}
		first := ""
		if len(meta.Artists) > 0 {
			first = meta.Artists[0]
		}
		r := strings.NewReplacer(
			"{artists}", strings.Join(meta.Artists, ", "),
			"{artist}", first,
			"{title}", meta.Title,
			"{album}", meta.Album,
			".{output-ext}", "",
			".{ext}", "",
			"{output-ext}", "",
			"{ext}", "",
		)
		base = r.Replace(template)
	} else {
		base = fallback
	}

	base = SanitizeFilename(base)
	if base == "" {
		return "", Errorf(KindInput, "cannot derive an output file name")
	}
	return base + format.Ext(), nil
}

// BaseName strips the directory and extension from path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
