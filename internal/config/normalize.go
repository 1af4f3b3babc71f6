package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeProvider()
	c.normalizeDirectory()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeProvider() {
	c.Provider.Endpoint = strings.TrimSpace(c.Provider.Endpoint)
	c.Provider.AuthToken = strings.TrimSpace(c.Provider.AuthToken)
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = defaultProviderRequestTimeout
	}
}

func (c *Config) normalizeDirectory() {
	if c.Directory.Roles == nil {
		c.Directory.Roles = map[string][]string{}
		return
	}
	normalized := make(map[string][]string, len(c.Directory.Roles))
	for role, addresses := range c.Directory.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		cleaned := make([]string, 0, len(addresses))
		for _, addr := range addresses {
			if addr = strings.TrimSpace(addr); addr != "" {
				cleaned = append(cleaned, addr)
			}
		}
		normalized[role] = cleaned
	}
	c.Directory.Roles = normalized
}
