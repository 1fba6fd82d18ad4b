package jitcore

import "github.com/sirupsen/logrus"

// logger is the package-level sink for trace-level diagnostics: label
// binding, relocation patching, block allocation/release. Defaults to
// Warn so a library consumer gets silence unless it opts in, the way
// flapc's VerboseMode defaulted to false.
var logger = func() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}()

// SetLogger replaces the package logger. Passing nil restores the default.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = logrus.New()
		l.SetLevel(logrus.WarnLevel)
	}
	logger = l
}
