// Package nlog is a thin structured-logging facade over go.uber.org/zap,
// named and shaped after the teacher's own cmn/nlog package but backed
// by a real third-party logger rather than a hand-rolled one.
package nlog

import (
	"go.uber.org/zap"
)

var base = mustBuild()

func mustBuild() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// fall back to a no-op logger rather than taking the kernel down
		// over a logging misconfiguration.
		l = zap.NewNop()
	}
	return l.Sugar()
}

// SetLevel swaps in a differently-leveled logger; an unparsable level
// leaves the current logger in place.
func SetLevel(level string) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	cfg.Level = lvl
	if l, err := cfg.Build(zap.AddCallerSkip(1)); err == nil {
		base = l.Sugar()
	}
}

func Infoln(args ...any)            { base.Infoln(args...) }
func Infof(format string, a ...any) { base.Infof(format, a...) }
func Warnln(args ...any)            { base.Warnln(args...) }
func Warnf(format string, a ...any) { base.Warnf(format, a...) }
func Errorln(args ...any)           { base.Errorln(args...) }
func Errorf(format string, a ...any) { base.Errorf(format, a...) }

// Flush drains buffered log entries; call before process exit.
func Flush() { _ = base.Sync() }
