package loglevel

import (
	"strings"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// NewLevelFilterFromString wraps logger to filter out entries below s.
// s is one of DEBUG INFO WARN ERROR, case insensitive, anything else lets
// everything through.
func NewLevelFilterFromString(logger log.Logger, s string) log.Logger {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return level.NewFilter(logger, level.AllowDebug())
	case "INFO":
		return level.NewFilter(logger, level.AllowInfo())
	case "WARN":
		return level.NewFilter(logger, level.AllowWarn())
	case "ERROR":
		return level.NewFilter(logger, level.AllowError())
	}

	return level.NewFilter(logger, level.AllowAll())
}
