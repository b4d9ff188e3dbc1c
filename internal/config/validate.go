package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateTransformer(); err != nil {
		return err
	}
	if c.Convert.Quality < 1 || c.Convert.Quality > 100 {
		return errors.New("convert.quality must be between 1 and 100")
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must be >= 0 (0 retries forever)")
	}
	if c.Retry.Backoff < 0 {
		return errors.New("retry.backoff must be >= 0")
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RootDir == "" {
		return errors.New("paths.root_dir must be set")
	}
	if c.Paths.SourceDir == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/facewatch/config.toml"
		}
		return fmt.Errorf("paths.source_dir is required. Set FACEWATCH_SOURCE_DIR or edit %s (create with 'facewatch config init')", defaultPath)
	}
	if c.Paths.SourceDir == c.InputDir() || c.Paths.SourceDir == c.OutputDir() {
		return errors.New("paths.source_dir must not be the work queue or output directory")
	}
	return nil
}

// decodableConvertExtensions lists the formats the image normalizer can read.
var decodableConvertExtensions = map[string]struct{}{".png": {}}

func (c *Config) validateWatch() error {
	if err := ensurePositiveMap(map[string]int{
		"watch.poll_interval":           c.Watch.PollInterval,
		"watch.stabilize_timeout":       c.Watch.StabilizeTimeout,
		"watch.stabilize_poll_interval": c.Watch.StabilizePollInterval,
	}); err != nil {
		return err
	}
	if c.Watch.SettleDelay < 0 {
		return errors.New("watch.settle_delay must be >= 0")
	}
	if c.Watch.StabilizePollInterval > c.Watch.StabilizeTimeout {
		return errors.New("watch.stabilize_poll_interval must not exceed watch.stabilize_timeout")
	}
	if len(c.Watch.VideoExtensions)+len(c.Watch.ImageExtensions)+len(c.Watch.ConvertExtensions) == 0 {
		return errors.New("watch: at least one supported extension is required")
	}
	for _, ext := range c.Watch.ConvertExtensions {
		if _, ok := decodableConvertExtensions[ext]; !ok {
			return fmt.Errorf("watch.convert_extensions: %q cannot be decoded; only .png is converted", ext)
		}
	}
	seen := make(map[string]string)
	for key, exts := range map[string][]string{
		"watch.video_extensions":   c.Watch.VideoExtensions,
		"watch.image_extensions":   c.Watch.ImageExtensions,
		"watch.convert_extensions": c.Watch.ConvertExtensions,
	} {
		for _, ext := range exts {
			if other, ok := seen[ext]; ok {
				return fmt.Errorf("%s: extension %q is also listed in %s", key, ext, other)
			}
			seen[ext] = key
		}
	}
	return nil
}

func (c *Config) validateTransformer() error {
	if c.Transformer.Executable == "" {
		return errors.New("transformer.executable must be set (or export FACEWATCH_TRANSFORMER)")
	}
	if c.Transformer.ReferenceAsset == "" {
		return errors.New("transformer.reference_asset must be set")
	}
	if len(c.Transformer.Processors) == 0 {
		return errors.New("transformer.processors must include at least one processor")
	}
	if c.Transformer.FaceSelectorMode == "" {
		return errors.New("transformer.face_selector_mode must be set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
