package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// GenieConfig holds the credentials and limits used to reach a Genie space.
// Missing credentials are not a parse error: the server starts and reports a
// configuration error on each request instead.
type GenieConfig struct {
	Host       string        `env:"DATABRICKS_HOST"`
	Token      string        `env:"DATABRICKS_TOKEN"`
	SpaceID    string        `env:"GENIE_SPACE_ID"`
	Timeout    time.Duration `env:"GENIE_TIMEOUT" envDefault:"120s"`
	IncludeRaw bool          `env:"GENIE_INCLUDE_RAW" envDefault:"false"`
}

func ParseGenieConfig() (GenieConfig, error) {
	var cfg GenieConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing genie config: %w", err)
	}
	cfg.Host = NormalizeHost(cfg.Host)
	return cfg, nil
}

func (c GenieConfig) Complete() bool {
	return len(c.Missing()) == 0
}

// Missing lists the env vars that still need a value. It is meant for
// start-up logs only and never ends up in a response.
func (c GenieConfig) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "DATABRICKS_HOST")
	}
	if strings.TrimSpace(c.Token) == "" {
		missing = append(missing, "DATABRICKS_TOKEN")
	}
	if strings.TrimSpace(c.SpaceID) == "" {
		missing = append(missing, "GENIE_SPACE_ID")
	}
	return missing
}

// NormalizeHost accepts a workspace host with or without scheme and trailing
// slash and returns a base url for the REST api.
func NormalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if u, err := url.Parse(host); err != nil || u.Scheme == "" || u.Host == "" {
		return "https://" + host
	}
	return host
}

// ArchiveConfig selects where raw Genie replies are kept. A bucket wins over
// a directory; with neither set nothing is archived.
type ArchiveConfig struct {
	Dir               string `env:"ARCHIVE_DIR"`
	Bucket            string `env:"ARCHIVE_BUCKET"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
}

func ParseArchiveConfig() (ArchiveConfig, error) {
	var cfg ArchiveConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing archive config: %w", err)
	}
	return cfg, nil
}

func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != "" || c.Dir != ""
}
