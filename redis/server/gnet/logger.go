package gnet

import (
	"github.com/hdt3213/redict/lib/logger"
)

// gnetLogger routes the engine logs to lib/logger
type gnetLogger struct{}

func (gnetLogger) Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

func (gnetLogger) Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

func (gnetLogger) Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

func (gnetLogger) Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

func (gnetLogger) Fatalf(format string, args ...any) {
	logger.Fatalf(format, args...)
}
