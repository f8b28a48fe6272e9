package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ai-consultation-be/pkg/relay"

	"github.com/pelletier/go-toml/v2"
)

// profile is the on-disk client configuration.
type profile struct {
	ServerURL string `toml:"server_url"`
	Token     string `toml:"token"`
	CachePath string `toml:"cache_path"`
	CacheSize int    `toml:"cache_size"`
}

func defaultProfilePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "consult", "config.toml")
	}
	return filepath.Join(".", "consult.toml")
}

func defaultProfile() profile {
	cachePath := filepath.Join(".", "consult-cache.db")
	if dir, err := os.UserCacheDir(); err == nil {
		cachePath = filepath.Join(dir, "consult", "recent.db")
	}
	return profile{
		ServerURL: "http://localhost:3000",
		CachePath: cachePath,
		CacheSize: relay.DefaultCacheSize,
	}
}

// loadProfile reads path over the defaults. A missing file is not an error.
// CONSULT_SERVER and CONSULT_TOKEN override the file.
func loadProfile(path string) (profile, error) {
	p := defaultProfile()
	if path == "" {
		path = defaultProfilePath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return p, fmt.Errorf("read profile %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("CONSULT_SERVER")); v != "" {
		p.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CONSULT_TOKEN")); v != "" {
		p.Token = v
	}
	p.CachePath = expandHome(p.CachePath)
	if p.CacheSize <= 0 {
		p.CacheSize = relay.DefaultCacheSize
	}
	return p, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
