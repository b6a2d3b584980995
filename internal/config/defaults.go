package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable overrides. PAGEDIFF_APP_ENV mirrors the deployment
// environment switch; the rest exist so containers can run without a config file.
const (
	envAppEnv              = "PAGEDIFF_APP_ENV"
	envPort                = "PAGEDIFF_PORT"
	envRestartBrokenDiffer = "PAGEDIFF_RESTART_BROKEN_DIFFER"
	envAllowOrigin         = "PAGEDIFF_ALLOW_ORIGIN"
)

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = 8081
	}
	if c.Server.Environment == "" {
		c.Server.Environment = EnvDevelopment
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 10 << 20 // 10 MiB
	}
	if c.Server.FetchTimeout == 0 {
		c.Server.FetchTimeout = 30 * time.Second
	}
	if c.Server.DiffTimeout == 0 {
		c.Server.DiffTimeout = 60 * time.Second
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = 4
	}
	if c.Server.DiffCacheSize == 0 {
		c.Server.DiffCacheSize = 512
	}

	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 15 * time.Minute
	}
	if c.Monitor.DBPath == "" {
		c.Monitor.DBPath = "./pagediff.db"
	}
	if c.Monitor.NATS.URL == "" {
		c.Monitor.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Monitor.NATS.Subject == "" {
		c.Monitor.NATS.Subject = "pagediff.changes"
	}
	if c.Monitor.NATS.Stream == "" {
		c.Monitor.NATS.Stream = "PAGEDIFF"
	}

	if c.Archive.Timeout == 0 {
		c.Archive.Timeout = 30 * time.Second
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envAppEnv); v != "" {
		c.Server.Environment = v
	}
	if v := os.Getenv(envPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv(envRestartBrokenDiffer); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.RestartBrokenDiffer = b
		}
	}
	if v := os.Getenv(envAllowOrigin); v != "" {
		c.Server.AllowedOrigins = splitOrigins(v)
	}
}

// splitOrigins parses a comma separated origin list, dropping empties.
func splitOrigins(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
