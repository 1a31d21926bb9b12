package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var sourceExtensions = []string{".yml", ".yaml", ".toml"}

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Source
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Source),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	for _, ext := range sourceExtensions {
		files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*"+ext))
		if err != nil {
			return fmt.Errorf("failed to find %s files: %w", ext, err)
		}

		for _, file := range files {
			source, err := cc.LoadConfig(file)
			if err != nil {
				return fmt.Errorf("error loading %s: %w", file, err)
			}

			slog.Debug("Source configuration loaded", "source", source.Name, "enabled", source.IsEnabled(), "default_tags", source.DefaultTags)
		}
	}

	return nil
}

// LoadConfig parses a single source file; the source name is the file name
// without its extension.
func (cc *ConfigCache) LoadConfig(configFile string) (*Source, error) {
	source, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(configFile)
	source.Name = strings.TrimSuffix(base, filepath.Ext(base))

	if err := cc.validateConfig(source); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if _, exists := cc.cache[source.Name]; exists {
		return nil, fmt.Errorf("duplicate source name '%s'", source.Name)
	}
	cc.cache[source.Name] = source

	return source, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Source, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	source, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return source, nil
}

// GetEnabledSources returns enabled sources ordered by name.
func (cc *ConfigCache) GetEnabledSources() []*Source {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sources := make([]*Source, 0, len(cc.cache))
	for _, source := range cc.cache {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name < sources[j].Name
	})
	return sources
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Source, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var source Source
	switch filepath.Ext(configFile) {
	case ".toml":
		if _, err := toml.Decode(string(data), &source); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &source); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if source.Settings.Timeout == 0 {
		source.Settings.Timeout = DefaultTimeout
	}

	return &source, nil
}

func (cc *ConfigCache) validateConfig(source *Source) error {
	if source == nil {
		return fmt.Errorf("source is nil")
	}

	if source.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if source.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	if u, err := url.Parse(source.URL); err != nil || u.Host == "" {
		return fmt.Errorf("source URL must be absolute: %s", source.URL)
	}

	if source.Settings.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	for _, tag := range source.DefaultTags {
		if _, ok := ParseTag(tag); !ok {
			slog.Warn("Unknown default tag ignored", "source", source.Name, "tag", tag)
		}
	}

	validFields := map[string]bool{
		"title":      true,
		"content":    true,
		"link":       true,
		"categories": true,
	}

	for i, filter := range source.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
