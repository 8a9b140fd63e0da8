package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/lockstep/internal/config"
	"github.com/aretw0/lockstep/internal/logging"
)

// LoadConfig loads path and applies the --log-level override, if set.
func LoadConfig(path, levelOverride string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if levelOverride != "" {
		if _, err := logging.ParseLevel(levelOverride); err != nil {
			return config.Config{}, err
		}
		cfg.LogLevel = levelOverride
	}
	return cfg, nil
}

// NewLogger creates the process logger for cfg.
func NewLogger(cfg config.Config) *slog.Logger {
	return logging.New(cfg.Level())
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// mdCell escapes a value for a markdown table cell.
func mdCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
