package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Stock Analyst Configuration

[provider]
# Market data provider: "polygon", "yahoo" or "replay"
name = "polygon"
polygon_base_url = "https://api.polygon.io"
yahoo_base_url = "https://query1.finance.yahoo.com"
# HTTP timeout per provider request
timeout = "30s"
# Fixture file served by the replay provider (written by "analyze --record")
fixtures_path = ""

[provider.breaker]
# Fail fast after repeated provider errors
enabled = true
failure_threshold = 5
reset_timeout = "30s"

[cache]
# Cache fetched bars and archive reports in SQLite
enabled = true
# Defaults to <config dir>/data/analyst.db
# path = ""
# Cached bars older than this are fetched again
ttl = "1h"

[engine]
# Steps run concurrently within one dependency level (1 = sequential)
workers = 4
# Upper bound for one analysis
timeout = "2m"

[planner]
# OpenAI model used to turn prompts into plans
model = "gpt-4o-mini"
# Leave empty for api.openai.com
base_url = ""
max_tokens = 2000
# Attempts on rate limits and server errors
max_attempts = 3

[logging]
# trace, debug, info, warn, error
level = "info"
# Also write rotated logs to <config dir>/logs/analyst.log
file = true

[metrics]
# Write Prometheus metrics to a textfile after each run
enabled = false
# textfile_path = ""

[tracing]
# Print OpenTelemetry spans to stderr
enabled = false
pretty_print = false

[watch]
# Cron schedule for "watch" (minute hour day month weekday)
schedule = "0 18 * * 1-5"

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "2006-01-02"
`

const credentialsTemplate = `# Stock Analyst Credentials
# Keep this file private (chmod 600). Environment variables
# POLYGON_API_KEY and OPENAI_API_KEY take precedence.

[polygon]
api_key = ""

[openai]
api_key = ""
`

func createTemplateConfig(configDir string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}

func createTemplateCredentials(configDir string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return "", fmt.Errorf("writing credentials template: %w", err)
	}

	return path, nil
}
