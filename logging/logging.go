// Package logging builds the process-wide structured logger from
// config.LoggingConfig, grounded on the upstream framework's go-hclog
// level/format conventions.
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/loomwork/agentcore/config"
)

// New builds an hclog.Logger at the level and format cfg specifies.
func New(cfg config.LoggingConfig, name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(cfg.Level),
		JSONFormat: cfg.JSON,
		Output:     os.Stderr,
	})
}
