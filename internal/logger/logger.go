// Package logger provides the internal structured logger used across the
// barman packages and the CLI.
package logger

import (
	"github.com/willibrandon/mtlog"
	"github.com/willibrandon/mtlog/core"
)

// Log is the package-level logger for barman-core.
var Log core.Logger

func init() {
	Log = mtlog.New(
		mtlog.WithConsole(),
		mtlog.WithMinimumLevel(core.InformationLevel),
	)
}
