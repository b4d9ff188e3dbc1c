// Package convert normalizes raster images into the canonical JPEG format
// before they are staged.
package convert

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"facewatch/internal/logging"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// CanonicalExtension is the extension converted images receive.
const CanonicalExtension = ".jpg"

// Result describes what Normalize did with a source path.
type Result struct {
	// Path is the file that should continue through the pipeline.
	Path string
	// Converted is true when a new JPEG was written and the original removed.
	Converted bool
	// Superseded is true when a sibling JPEG already existed; the original
	// was removed and nothing should be staged for it.
	Superseded bool
}

// Converter converts PNG sources to JPEG in place. Only PNG is decoded;
// config validation keeps other formats out of watch.convert_extensions.
type Converter struct {
	Quality    int
	Extensions []string
	logger     *slog.Logger
}

// New returns a converter for the given convertible extensions.
func New(quality int, extensions []string, logger *slog.Logger) *Converter {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if len(extensions) == 0 {
		extensions = []string{".png"}
	}
	return &Converter{
		Quality:    quality,
		Extensions: extensions,
		logger:     logging.NewComponentLogger(logger, "convert"),
	}
}

func (c *Converter) convertible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range c.Extensions {
		if strings.EqualFold(candidate, ext) {
			return true
		}
	}
	return false
}

// Normalize converts sourcePath when it is a convertible raster image and
// returns the path that should be staged. Other files pass through.
func (c *Converter) Normalize(sourcePath string) (Result, error) {
	if !c.convertible(sourcePath) {
		return Result{Path: sourcePath}, nil
	}

	target := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + CanonicalExtension
	if _, err := os.Lstat(target); err == nil {
		c.removeOriginal(sourcePath, "superseded")
		return Result{Path: sourcePath, Superseded: true}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return Result{Path: sourcePath}, fmt.Errorf("stat conversion target: %w", err)
	}

	img, err := decodePNG(sourcePath)
	if err != nil {
		return Result{Path: sourcePath}, err
	}
	if err := c.writeJPEG(target, flatten(img)); err != nil {
		return Result{Path: sourcePath}, err
	}

	c.removeOriginal(sourcePath, "converted")
	c.logger.Info("image converted",
		logging.String(logging.FieldEntry, filepath.Base(sourcePath)),
		logging.String("target", filepath.Base(target)),
		logging.Int("quality", c.Quality),
		logging.String(logging.FieldEventType, "image_converted"),
	)
	return Result{Path: target, Converted: true}, nil
}

func decodePNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// flatten composites img over an opaque white background.
func flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(out, bounds, img, bounds.Min, draw.Over)
	return out
}

func (c *Converter) writeJPEG(target string, img image.Image) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".facewatch-*.jpg.tmp")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync jpeg: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close jpeg: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod jpeg: %w", err)
	}
	if err = os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename jpeg: %w", err)
	}
	return nil
}

func (c *Converter) removeOriginal(path, reason string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(c.logger, "original image not removed", "image_remove_failed",
			logging.String(logging.FieldEntry, filepath.Base(path)),
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check write permission on the source directory"),
			logging.String(logging.FieldImpact, "original stays in the source directory but is marked seen"),
		)
	}
}
