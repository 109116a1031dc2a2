// Package util provides the logging and statistics plumbing shared by the
// protocol packages and the CLIs.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

// logger is the process-wide pterm logger behind the wrappers. Output goes
// to stderr (pterm's default).
var logger = &pterm.DefaultLogger

func init() {
	logger.ShowTime = true
	logger.TimeFormat = "02 Jan 15:04:05"
	logger.MaxWidth = 1000
}

// Verbosity selects how chatty the process is. Normal hides the per-frame
// chatter the poll loop produces; Debug shows everything, including
// dropped malformed frames and reliable-send outcomes.
type Verbosity int

const (
	VerbosityNormal Verbosity = iota
	VerbosityDebug
)

// SetVerbosity applies the process-wide log level.
func SetVerbosity(v Verbosity) {
	switch v {
	case VerbosityDebug:
		logger.Level = pterm.LogLevelDebug
	default:
		logger.Level = pterm.LogLevelInfo
	}
}

// Leveled logging helpers used across the module.

func LogDebug(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	logger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}
