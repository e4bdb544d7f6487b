package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-inbox/core"
	"gopkg.in/yaml.v3"
)

// yamlConfigLoader reads raw config values from a YAML file. A missing path
// yields no values so defaults apply.
type yamlConfigLoader struct {
	path string
}

func (l yamlConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inboxd: read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("inboxd: parse config %s: %w", path, err)
	}
	return raw, nil
}

func loadConfig(ctx context.Context) (core.Config, core.ConfigProvider, error) {
	provider := core.NewCfgxConfigProvider(yamlConfigLoader{path: configPath})
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, nil, err
	}
	return cfg, provider, nil
}

var _ core.RawConfigLoader = yamlConfigLoader{}
