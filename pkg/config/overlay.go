package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// duration parses YAML scalars like "30s" or "5m" into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// overlayFile is the optional tuning overlay read from the config directory.
type overlayFile struct {
	Engine *struct {
		PollInterval       duration `yaml:"poll_interval"`
		PollIntervalJitter duration `yaml:"poll_interval_jitter"`
		JobTimeout         duration `yaml:"job_timeout"`
		MaxWorkers         int      `yaml:"max_workers"`
		QueueSize          int      `yaml:"queue_size"`
		DrainTimeout       duration `yaml:"drain_timeout"`
	} `yaml:"engine"`
	Poller *struct {
		PollInterval duration `yaml:"poll_interval"`
		MaxWorkers   int      `yaml:"max_workers"`
		BatchLimit   int      `yaml:"batch_limit"`
		QueueSize    int      `yaml:"queue_size"`
	} `yaml:"poller"`
	Sync *struct {
		TitleSimilarityThreshold float64 `yaml:"title_similarity_threshold"`
	} `yaml:"sync"`
}

// applyOverlay merges config.yaml from configDir onto cfg. A missing file is
// not an error; a malformed one is.
func applyOverlay(cfg *Config, configDir string) error {
	if configDir == "" {
		return nil
	}
	path := filepath.Join(configDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if e := overlay.Engine; e != nil {
		merge(&cfg.Engine.PollInterval, time.Duration(e.PollInterval))
		merge(&cfg.Engine.PollIntervalJitter, time.Duration(e.PollIntervalJitter))
		merge(&cfg.Engine.JobTimeout, time.Duration(e.JobTimeout))
		merge(&cfg.Engine.MaxWorkers, e.MaxWorkers)
		merge(&cfg.Engine.QueueSize, e.QueueSize)
		merge(&cfg.Engine.DrainTimeout, time.Duration(e.DrainTimeout))
	}
	if p := overlay.Poller; p != nil {
		merge(&cfg.Poller.PollInterval, time.Duration(p.PollInterval))
		merge(&cfg.Poller.MaxWorkers, p.MaxWorkers)
		merge(&cfg.Poller.BatchLimit, p.BatchLimit)
		merge(&cfg.Poller.QueueSize, p.QueueSize)
	}
	if s := overlay.Sync; s != nil {
		merge(&cfg.Sync.TitleSimilarityThreshold, s.TitleSimilarityThreshold)
	}
	return nil
}

// merge overwrites dst when src is a non-zero value.
func merge[T comparable](dst *T, src T) {
	var zero T
	if src != zero {
		*dst = src
	}
}
