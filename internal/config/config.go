// Package config loads runtime settings from an optional .env file and
// F1MSAVE_* environment variables.
package config

import (
	"compress/zlib"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/F1MSave/internal/logging"
)

// Environment variable names.
const (
	EnvLogLevel         = "F1MSAVE_LOG_LEVEL"
	EnvLogFormat        = "F1MSAVE_LOG_FORMAT"
	EnvBackupDir        = "F1MSAVE_BACKUP_DIR"
	EnvCompressionLevel = "F1MSAVE_COMPRESSION_LEVEL"
)

// Config holds the settings shared by the CLI commands.
type Config struct {
	LogLevel         logging.Level
	LogFormat        logging.Format
	BackupDir        string
	CompressionLevel int
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel:         logging.LevelInfo,
		LogFormat:        logging.FormatText,
		BackupDir:        defaultBackupDir(),
		CompressionLevel: zlib.DefaultCompression,
	}
}

func defaultBackupDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "f1msave", "backups")
	}
	return filepath.Join(os.TempDir(), "f1msave-backups")
}

// Load reads envFiles (default ".env") if present and then the
// environment. Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvLogLevel); v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		format, err := logging.ParseFormat(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogFormat, err)
		}
		cfg.LogFormat = format
	}
	if v := os.Getenv(EnvBackupDir); v != "" {
		cfg.BackupDir = v
	}
	if v := os.Getenv(EnvCompressionLevel); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvCompressionLevel, err)
		}
		if level < zlib.HuffmanOnly || level > zlib.BestCompression {
			return Config{}, fmt.Errorf("%s: level %d out of range [%d, %d]",
				EnvCompressionLevel, level, zlib.HuffmanOnly, zlib.BestCompression)
		}
		cfg.CompressionLevel = level
	}
	return cfg, nil
}
