package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	DataDir   string
	DBPath    string
	Hyperfine string
	LogLevel  string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("HYPCMP_DATA_DIR", filepath.Join(homeDir, ".hypcmp"))

	c := &Config{
		DataDir:   dataDir,
		DBPath:    filepath.Join(dataDir, "history.db"),
		Hyperfine: getEnv("HYPCMP_HYPERFINE", "hyperfine"),
		LogLevel:  getEnv("HYPCMP_LOG_LEVEL", "info"),
	}

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
