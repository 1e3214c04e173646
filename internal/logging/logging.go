// Configures the process-wide logrus logger
package logging

import (
	"fmt"

	"github.com/iTrooz/storefront-cache/internal/config"

	"github.com/sirupsen/logrus"
)

// Setup applies level and format from cfg to the standard logrus logger
func Setup(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format: %s", cfg.Format)
	}
	return nil
}
