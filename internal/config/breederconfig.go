package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// LoadBreederConfig reads and parses a breeder job configuration from path,
// accepting either YAML or JSON based on file extension (.json is parsed as
// JSON; anything else as YAML, since YAML is a superset of JSON anyway).
func LoadBreederConfig(path string) (domain.BreederConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.BreederConfig{}, fmt.Errorf("op=config.LoadBreederConfig: read %s: %w", path, err)
	}

	var doc yaml.Node
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return domain.BreederConfig{}, fmt.Errorf("op=config.LoadBreederConfig: parse json: %w", err)
		}
		reencoded, err := yaml.Marshal(v)
		if err != nil {
			return domain.BreederConfig{}, fmt.Errorf("op=config.LoadBreederConfig: normalize json: %w", err)
		}
		raw = reencoded
	}

	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.BreederConfig{}, fmt.Errorf("op=config.LoadBreederConfig: parse yaml: %w", err)
	}

	normalizeReconnaissanceKeys(&doc)

	var cfg domain.BreederConfig
	if err := doc.Decode(&cfg); err != nil {
		return domain.BreederConfig{}, fmt.Errorf("op=config.LoadBreederConfig: decode: %w", err)
	}
	cfg.Cooperation.ShareWithinBreeder = cfg.Run.Parallel > 1

	return cfg, nil
}

// normalizeReconnaissanceKeys walks the parsed document tree renaming any
// mapping key "reconaissance" (the historical misspelling found in some
// source configurations) to "reconnaissance", with a warning, so a single
// struct field can absorb both spellings.
func normalizeReconnaissanceKeys(node *yaml.Node) {
	if node == nil {
		return
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i < len(node.Content)-1; i += 2 {
			key := node.Content[i]
			if key.Kind == yaml.ScalarNode && key.Value == "reconaissance" {
				slog.Warn("config uses deprecated misspelled key 'reconaissance', treating as 'reconnaissance'")
				key.Value = "reconnaissance"
			}
		}
	}
	for _, child := range node.Content {
		normalizeReconnaissanceKeys(child)
	}
}

// ParseTimingEnd parses the "{N}[dhm]" wall-clock budget format (e.g.
// "1h", "30m", "2d") into a number of seconds.
func ParseTimingEnd(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty timing.end", domain.ErrInvalidArgument)
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid timing.end %q: %v", domain.ErrInvalidArgument, s, err)
	}
	switch unit {
	case 'd':
		return n * 24 * 3600, nil
	case 'h':
		return n * 3600, nil
	case 'm':
		return n * 60, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized timing.end unit in %q", domain.ErrInvalidArgument, s)
	}
}
