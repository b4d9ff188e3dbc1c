// Package media classifies source entries by extension.
package media

import (
	"path/filepath"
	"slices"
	"strings"
)

// Kind is the closed set of media kinds the pipeline distinguishes.
type Kind int

const (
	Unsupported Kind = iota
	// RasterConvert is a raster image that must be normalized before staging.
	RasterConvert
	// RasterCanonical is a raster image already in the canonical format.
	RasterCanonical
	Video
)

func (k Kind) String() string {
	switch k {
	case RasterConvert:
		return "raster-convert"
	case RasterCanonical:
		return "raster"
	case Video:
		return "video"
	default:
		return "unsupported"
	}
}

// Supported reports whether entries of this kind flow through the pipeline.
func (k Kind) Supported() bool {
	return k != Unsupported
}

// Default extension sets.
var (
	DefaultVideoExtensions   = []string{".mp4", ".mov", ".webm"}
	DefaultImageExtensions   = []string{".jpg", ".jpeg", ".webp"}
	DefaultConvertExtensions = []string{".png"}
)

// Classifier maps lower-cased extensions to kinds.
type Classifier struct {
	kinds map[string]Kind
}

// NewClassifier builds a classifier from the configured extension sets.
// Extensions are matched case-insensitively, with or without a leading dot.
func NewClassifier(video, image, convert []string) Classifier {
	c := Classifier{kinds: make(map[string]Kind, len(video)+len(image)+len(convert))}
	c.add(video, Video)
	c.add(image, RasterCanonical)
	c.add(convert, RasterConvert)
	return c
}

func (c Classifier) add(exts []string, kind Kind) {
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.kinds[ext] = kind
	}
}

// Classify returns the kind for name.
func (c Classifier) Classify(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Unsupported
	}
	return c.kinds[ext]
}

// Extensions returns every recognized extension in sorted order.
func (c Classifier) Extensions() []string {
	out := make([]string, 0, len(c.kinds))
	for ext := range c.kinds {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

var defaultClassifier = NewClassifier(DefaultVideoExtensions, DefaultImageExtensions, DefaultConvertExtensions)

// Classify uses the default extension sets.
func Classify(name string) Kind {
	return defaultClassifier.Classify(name)
}
