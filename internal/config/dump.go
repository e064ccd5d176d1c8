package config

import (
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

const redactedValue = "****"

// Redacted returns a copy of the config with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	if out.Neon.APIKey != "" {
		out.Neon.APIKey = redactedValue
	}
	out.Database.URL = redactURL(c.Database.URL)
	out.Aggregator.URL = redactURL(c.Aggregator.URL)
	out.Redis.URL = redactURL(c.Redis.URL)
	return &out
}

// YAML renders the config in the same layout Load accepts from a file.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	return u.Redacted()
}
