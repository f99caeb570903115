package activities

import (
	"github.com/alexisbeaulieu97/cadence/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

func noopLogger() ports.Logger {
	return logging.NewNoOpLogger()
}
