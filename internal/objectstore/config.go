// Package objectstore publishes finished reports to S3-compatible storage.
package objectstore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/mpataki/hypcmp/internal/models"
)

const (
	EnvAccessKey = "HYPCMP_S3_ACCESS_KEY"
	EnvSecretKey = "HYPCMP_S3_SECRET_KEY"

	defaultRegion = "us-east-1"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// ConfigFromPublish combines the benchmark file's publish section with
// credentials from the environment.
func ConfigFromPublish(p *models.Publish) (Config, error) {
	cfg := Config{
		Endpoint:  p.Endpoint,
		AccessKey: os.Getenv(EnvAccessKey),
		SecretKey: os.Getenv(EnvSecretKey),
		Region:    p.Region,
		UseSSL:    p.UseSSL,
		Bucket:    p.Bucket,
		Prefix:    p.Prefix,
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return fmt.Errorf("access key is required (set %s)", EnvAccessKey)
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("secret key is required (set %s)", EnvSecretKey)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// ObjectKey is where the report of the given session is stored.
func (c Config) ObjectKey(session string) string {
	return path.Join(strings.Trim(c.Prefix, "/"), session+".json")
}
