package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/mysql-redis-adapter/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the
// "mysql-redis-adapter" component, at the level the config specifies.
func NewLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", "mysql-redis-adapter").
		Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
