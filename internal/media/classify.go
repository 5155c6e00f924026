package media

import (
	"mime"
	"path/filepath"
	"strings"
)

// FileType classifies a file for storage and display.
type FileType string

const (
	FileTypeImage   FileType = "image"
	FileTypeVideo   FileType = "video"
	FileTypeUnknown FileType = "unknown"
)

// Classifier maps file extensions to a FileType. It is immutable after
// construction, so a single instance is safe to share across goroutines;
// config changes take effect by building a new one for the next scan.
type Classifier struct {
	images map[string]bool
	videos map[string]bool
}

// NewClassifier builds a Classifier from the two extension sets.
// Extensions are matched case-insensitively and must carry a leading dot.
func NewClassifier(imageExts, videoExts []string) *Classifier {
	c := &Classifier{
		images: make(map[string]bool, len(imageExts)),
		videos: make(map[string]bool, len(videoExts)),
	}
	for _, e := range imageExts {
		c.images[strings.ToLower(e)] = true
	}
	for _, e := range videoExts {
		c.videos[strings.ToLower(e)] = true
	}
	return c
}

// Classify returns the FileType for ext. Unrecognized extensions map to
// FileTypeUnknown rather than erroring, so callers never halt on odd files.
func (c *Classifier) Classify(ext string) FileType {
	ext = strings.ToLower(ext)
	switch {
	case c.images[ext]:
		return FileTypeImage
	case c.videos[ext]:
		return FileTypeVideo
	default:
		return FileTypeUnknown
	}
}

// ClassifyPath classifies by the extension of path.
func (c *Classifier) ClassifyPath(path string) FileType {
	return c.Classify(filepath.Ext(path))
}

// ContentType returns the MIME content type for the file based on its
// extension. Returns "application/octet-stream" for unknown types.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
