// Package config handles YAML configuration loading for the worker binary.
package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/triage/types"
	"gopkg.in/yaml.v3"
)

// Config represents the backend.yaml configuration document consumed by
// the worker at bootstrap (C7).
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Logging     LoggingConfig     `yaml:"logging"`
	Limits      LimitsConfig      `yaml:"limits"`
	Tasting     TastingConfig     `yaml:"tasting"`
	Scanners    ScannerMap        `yaml:"scanners"`
}

// CoordinatorConfig addresses the shared queue/event store.
type CoordinatorConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// LoggingConfig configures the worker's structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LimitsConfig bounds a single worker's lifetime and per-request/per-file
// processing budgets.
type LimitsConfig struct {
	// MaxFiles retires the worker after this many requests are popped
	// (leased, or skipped as already expired).
	MaxFiles int `yaml:"max_files"`
	// TimeToLive retires the worker after this much uptime.
	TimeToLive Duration `yaml:"time_to_live"`
	// MaxDepth is the maximum file.depth processed; deeper nodes are skipped.
	MaxDepth int `yaml:"max_depth"`
	// Distribution is the per-file-node distribution timeout.
	Distribution Duration `yaml:"distribution"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// TastingConfig configures the classification step (C2).
type TastingConfig struct {
	// MimeEnabled turns on MIME sniffing via the mime classifier.
	MimeEnabled bool `yaml:"mime_enabled"`
	// YaraRules is a rule file, a directory of rule files, or an
	// "s3://bucket/key" prefix resolved at bootstrap.
	YaraRules string `yaml:"yara_rules"`
}

// ScannerMap is the configured rule list for every scanner, keyed by
// scanner name. Declaration order is preserved (Go maps don't order their
// keys), because assignment tie-breaking depends on configured order.
type ScannerMap struct {
	names    []string
	mappings map[string]types.ScannerMapping
}

// Names returns scanner names in the order they were declared in the
// configuration document.
func (s ScannerMap) Names() []string {
	return s.names
}

// Mappings returns the name-to-rules map for use by the assignment engine.
func (s ScannerMap) Mappings() map[string]types.ScannerMapping {
	return s.mappings
}

// UnmarshalYAML walks the mapping node's content pairs directly instead of
// decoding into a Go map, which would lose declaration order.
func (s *ScannerMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("scanners: expected a mapping, got %v", value.Kind)
	}

	s.names = make([]string, 0, len(value.Content)/2)
	s.mappings = make(map[string]types.ScannerMapping, len(value.Content)/2)

	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]

		var name string
		if err := keyNode.Decode(&name); err != nil {
			return fmt.Errorf("scanners: invalid key: %w", err)
		}

		var mapping types.ScannerMapping
		if err := valNode.Decode(&mapping); err != nil {
			return fmt.Errorf("scanners.%s: %w", name, err)
		}

		if _, dup := s.mappings[name]; dup {
			return fmt.Errorf("scanners.%s: duplicate scanner name", name)
		}

		s.names = append(s.names, name)
		s.mappings[name] = mapping
	}

	return nil
}
