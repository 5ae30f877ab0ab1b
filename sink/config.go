package sink

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default and bound constants for file-sink configuration, per spec.md
// §6's EXTERNAL INTERFACES table.
const (
	DefaultFileExtension = ".txt"
	MinFileSize          = 4 * 1024
	DefaultFileSize      = 1024 * 1024
)

// Config is the environment-sourced configuration for the bundled
// observability stack: which sink to build and, for a file sink, where
// it lives and how large it may grow before rotating.
type Config struct {
	FileLogging   bool
	FileName      string
	FilePath      string
	FileExtension string
	MaxFileSize   int64
}

// LoadConfig reads FILE_LOGGING, LOG_FILE_NAME, LOG_FILE_PATH,
// LOG_FILE_EXTN and FILE_SIZE from the environment, exactly as spec.md
// §6 names them. If FILE_LOGGING is "yes" and LOG_FILE_NAME is unset,
// setup aborts with an error rather than silently falling back to the
// console sink.
func LoadConfig() (Config, error) {
	cfg := Config{
		FileExtension: DefaultFileExtension,
		MaxFileSize:   DefaultFileSize,
	}

	cfg.FileLogging = strings.EqualFold(os.Getenv("FILE_LOGGING"), "yes")

	if cfg.FileLogging {
		cfg.FileName = os.Getenv("LOG_FILE_NAME")
		if cfg.FileName == "" {
			return Config{}, fmt.Errorf("sink: LOG_FILE_NAME is required when FILE_LOGGING=yes")
		}
		if cfg.FilePath = os.Getenv("LOG_FILE_PATH"); cfg.FilePath != "" {
			if info, err := os.Stat(cfg.FilePath); err != nil || !info.IsDir() {
				return Config{}, fmt.Errorf("%w: %s", ErrPathMissing, cfg.FilePath)
			}
		}
	}

	if extn := os.Getenv("LOG_FILE_EXTN"); extn != "" {
		cfg.FileExtension = extn
	}

	if raw := os.Getenv("FILE_SIZE"); raw != "" {
		size, err := parseFileSize(raw)
		if err != nil {
			return Config{}, err
		}
		if size < MinFileSize {
			size = MinFileSize
		}
		cfg.MaxFileSize = size
	}

	return cfg, nil
}

// parseFileSize parses a byte count with an optional K/M/G suffix
// (case-insensitive), per spec.md §6.
func parseFileSize(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("sink: FILE_SIZE is empty")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sink: invalid FILE_SIZE %q: %w", raw, err)
	}
	return n * mult, nil
}
