package compiler

import "go.uber.org/zap"

// log is the package-wide logger, defaulting to a no-op so that importing
// this package never forces a logging backend on the caller.
var log = zap.NewNop()

// SetLogger installs l as the package-wide logger. Passing nil restores
// the no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		log = zap.NewNop()
		return
	}
	log = l
}
