package content

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"
)

// Content is the normalized publish payload handed to provider adapters.
type Content struct {
	Caption string
	Images  []string
	Video   string
}

// DefaultCaption is used when a content item carries no caption and no
// hashtags at all.
const DefaultCaption = "Scheduled post"

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
	".m4v":  true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var urlPattern = regexp.MustCompile(`https?://[^\s"')\]]+`)

// stringList tolerates metadata fields stored as either a single string or
// an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*l = stringList{single}
		}
		return nil
	}

	var many []interface{}
	if err := json.Unmarshal(data, &many); err != nil {
		return nil
	}
	for _, v := range many {
		if s, ok := v.(string); ok && s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

type upload struct {
	MimeType  string `json:"mimeType"`
	PublicURL string `json:"publicUrl"`
}

type itemMetadata struct {
	Caption  string     `json:"caption"`
	Hashtags stringList `json:"hashtags"`
	Images   stringList `json:"images"`
	Carousel stringList `json:"carousel"`
	Story    stringList `json:"story"`
	Video    string     `json:"video"`
	Uploads  []upload   `json:"uploads"`
}

// Normalize extracts the caption and media references from a content item's
// loosely structured metadata. It is total: malformed input yields a
// text-only post with the default caption, never an error.
func Normalize(metadata json.RawMessage, previewURL string) Content {
	var meta itemMetadata
	if len(metadata) > 0 {
		// Best effort; a parse failure just means no fields were present.
		_ = json.Unmarshal(metadata, &meta)
	}

	c := Content{Caption: buildCaption(meta.Caption, meta.Hashtags)}

	for _, entry := range collect(meta.Images, meta.Carousel, meta.Story) {
		if IsVideoURL(entry) {
			if c.Video == "" {
				c.Video = entry
			}
			continue
		}
		c.Images = append(c.Images, entry)
	}

	for _, u := range meta.Uploads {
		if u.PublicURL == "" {
			continue
		}
		switch {
		case strings.HasPrefix(u.MimeType, "image/"):
			c.Images = append(c.Images, u.PublicURL)
		case strings.HasPrefix(u.MimeType, "video/") || IsVideoURL(u.PublicURL):
			if c.Video == "" {
				c.Video = u.PublicURL
			}
		}
	}

	// The explicit video field wins over anything sniffed above.
	if meta.Video != "" {
		c.Video = meta.Video
	}

	if len(c.Images) == 0 && c.Video == "" {
		fallbackMedia(&c, previewURL, meta.Caption)
	}

	return c
}

func buildCaption(caption string, hashtags []string) string {
	var parts []string

	if trimmed := strings.TrimSpace(caption); trimmed != "" {
		parts = append(parts, trimmed)
	}

	var tags []string
	for _, tag := range hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	if len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}

	if len(parts) == 0 {
		return DefaultCaption
	}
	return strings.Join(parts, "\n\n")
}

func collect(lists ...stringList) []string {
	var out []string
	for _, list := range lists {
		for _, entry := range list {
			if entry != "" {
				out = append(out, entry)
			}
		}
	}
	return out
}

func fallbackMedia(c *Content, previewURL, captionText string) {
	if previewURL != "" {
		if IsVideoURL(previewURL) {
			c.Video = previewURL
		} else {
			c.Images = append(c.Images, previewURL)
		}
		return
	}

	// Last resort: the caption itself may embed a usable media URL.
	for _, candidate := range urlPattern.FindAllString(captionText, -1) {
		if IsVideoURL(candidate) {
			c.Video = candidate
			return
		}
		if isImageURL(candidate) {
			c.Images = append(c.Images, candidate)
			return
		}
	}
}

// IsVideoURL reports whether a URL's extension looks like a video file.
func IsVideoURL(rawURL string) bool {
	return videoExtensions[urlExtension(rawURL)]
}

func isImageURL(rawURL string) bool {
	return imageExtensions[urlExtension(rawURL)]
}

func urlExtension(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.ToLower(path.Ext(trimmed))
}
