// Package logging constructs the daemon's contracts.Logger, backed by the
// teacher's Zap driver (contrib/logger/zap) for every level and format.
package logging

import (
	"github.com/flux-framework/flux-core/contrib/logger/zap"
	"github.com/flux-framework/flux-core/core/pkg/contracts"
)

// New builds a contracts.Logger for level ("debug"/"info"/"warn"/"error")
// and format ("json"/"console").
func New(level, format string) contracts.Logger {
	driver := zap.NewDriverWithConfig(&zap.Config{
		Level:         level,
		Format:        format,
		Output:        "stdout",
		AddCaller:     true,
		AddStacktrace: format != "console",
	})
	return driver
}
