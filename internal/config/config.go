package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Defaults for the classified extension sets. The config file may replace
// either set wholesale; the API can grow or shrink them at runtime.
var (
	DefaultImageExtensions = []string{
		".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tiff", ".tif",
		".svg", ".heic", ".ico", ".raw", ".cr2", ".nef", ".orf", ".sr2",
	}
	DefaultVideoExtensions = []string{
		".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv",
		".mpg", ".mpeg", ".m4v", ".3gp", ".webm", ".ts", ".mts", ".m2ts",
	}
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	MediaRoots      []string  `yaml:"media_roots"      json:"media_roots"`
	ExcludePaths    []string  `yaml:"exclude_paths"    json:"exclude_paths"`
	ImageExtensions []string  `yaml:"image_extensions" json:"image_extensions"`
	VideoExtensions []string  `yaml:"video_extensions" json:"video_extensions"`
	Schedule        string    `yaml:"schedule"         json:"schedule"`
	DBPath          string    `yaml:"db_path"          json:"-"`
	HTTPAddr        string    `yaml:"http_addr"        json:"-"`
	Thumbnail       Thumbnail `yaml:"thumbnail"        json:"thumbnail"`
	LogLevel        string    `yaml:"log_level"        json:"-"`

	mu sync.Mutex
}

// Thumbnail holds sizing knobs for the in-memory thumbnail cache.
type Thumbnail struct {
	Width       int `yaml:"width"        json:"width"`
	Height      int `yaml:"height"       json:"height"`
	JPEGQuality int `yaml:"jpeg_quality" json:"jpeg_quality"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if len(c.ImageExtensions) == 0 {
		c.ImageExtensions = append([]string(nil), DefaultImageExtensions...)
	}
	if len(c.VideoExtensions) == 0 {
		c.VideoExtensions = append([]string(nil), DefaultVideoExtensions...)
	}
	if c.DBPath == "" {
		c.DBPath = "galleria.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Thumbnail.Width == 0 {
		c.Thumbnail.Width = 200
	}
	if c.Thumbnail.Height == 0 {
		c.Thumbnail.Height = 200
	}
	if c.Thumbnail.JPEGQuality == 0 {
		c.Thumbnail.JPEGQuality = 80
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without one (first run, bare Docker).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// normalizeExt lowercases ext and guarantees a leading dot.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// AddExtension registers ext under the given set ("image" or "video").
// Returns false when the set is unknown or ext is already present.
func (c *Config) AddExtension(mediaType, ext string) bool {
	ext = normalizeExt(ext)
	if ext == "" || ext == "." {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.extensionSet(mediaType)
	if set == nil {
		return false
	}
	for _, e := range *set {
		if e == ext {
			return false
		}
	}
	*set = append(*set, ext)
	return true
}

// RemoveExtension drops ext from the given set. Returns false if absent.
func (c *Config) RemoveExtension(mediaType, ext string) bool {
	ext = normalizeExt(ext)

	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.extensionSet(mediaType)
	if set == nil {
		return false
	}
	for i, e := range *set {
		if e == ext {
			*set = append((*set)[:i], (*set)[i+1:]...)
			return true
		}
	}
	return false
}

// extensionSet maps a media type name to its backing slice.
// Caller must hold c.mu.
func (c *Config) extensionSet(mediaType string) *[]string {
	switch mediaType {
	case "image":
		return &c.ImageExtensions
	case "video":
		return &c.VideoExtensions
	default:
		return nil
	}
}

// ExtensionSets returns copies of the current image and video sets so
// callers can build a classifier without holding the config lock.
func (c *Config) ExtensionSets() (images, videos []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ImageExtensions...),
		append([]string(nil), c.VideoExtensions...)
}
