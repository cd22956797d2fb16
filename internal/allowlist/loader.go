package allowlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// fileExtensions are tried in order for every subsystem
var fileExtensions = []string{".json", ".yaml", ".yml"}

// FileName returns the base name of a subsystem configuration file without extension
func FileName(sub domain.Category) string {
	return string(sub) + "_config"
}

// Load reads one allow-list file per subsystem from dir.
//
// A missing or malformed subsystem file yields an empty allow-list for that
// subsystem and is only logged. An unusable directory is an error: without it
// nothing could ever be persisted, so startup must fail.
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access allow-list directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("allow-list path %s is not a directory", dir)
	}

	cfg := &Config{subsystems: make(map[domain.Category]map[int]*List)}

	for _, sub := range domain.PersistedCategories {
		path, found := findFile(dir, sub)
		if !found {
			log.Warn().
				Str("subsystem", string(sub)).
				Str("dir", dir).
				Msg("Allow-list file not found, nothing will be persisted for subsystem")
			cfg.subsystems[sub] = map[int]*List{}
			continue
		}

		entries, err := readFile(path)
		if err != nil {
			log.Error().
				Err(err).
				Str("subsystem", string(sub)).
				Str("file", path).
				Msg("Failed to read allow-list file, using empty allow-list")
			cfg.subsystems[sub] = map[int]*List{}
			continue
		}

		lists, invalid := buildLists(entries)
		if len(invalid) > 0 {
			log.Warn().
				Str("subsystem", string(sub)).
				Strs("keys", invalid).
				Msg("Skipping non-numeric tm_id keys in allow-list")
		}
		cfg.subsystems[sub] = lists

		log.Info().
			Str("subsystem", string(sub)).
			Str("file", path).
			Int("tm_ids", len(lists)).
			Msg("Allow-list loaded")
	}

	return cfg, nil
}

func findFile(dir string, sub domain.Category) (string, bool) {
	for _, ext := range fileExtensions {
		path := filepath.Join(dir, FileName(sub)+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// readFile parses a tm_id -> parameter names document (JSON or YAML)
func readFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}

	entries := make(map[string][]string)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse allow-list json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse allow-list yaml: %w", err)
		}
	default:
		return nil, errors.New("unsupported allow-list file extension")
	}

	return entries, nil
}
