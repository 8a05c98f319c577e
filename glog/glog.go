// Package glog holds the process-wide structured logger used across
// gestalt's components. It defaults to a no-op logger so importing this
// module never produces unsolicited output; applications call SetLogger
// to wire in a real zap.Logger.
package glog

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger installs l as the package-wide logger. Passing nil restores
// the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}

// L returns the currently installed logger.
func L() *zap.Logger {
	return logger
}

// Safe invokes fn and recovers any panic, logging it with the given
// context instead of letting it escape into the caller's goroutine. Every
// user-supplied callback in this module is invoked through Safe so that
// library internals never break on broken user code.
func Safe(context string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered panic in user callback",
				zap.String("context", context),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
