// Package log provides the module-scoped structured logger used across
// this repository. The call convention (NewModuleLogger + Trace/Debug/
// Info/Warn/Error/Crit with alternating key/value context) mirrors the
// logger every component in this codebase was written against; only the
// backend differs, swapped for go.uber.org/zap's SugaredLogger.
package log

import (
	"go.uber.org/zap"
)

// Module names each logger is tagged with, one per consensus-core package.
const (
	Crypto      = "crypto"
	ChainTypes  = "chaintypes"
	Builder     = "builder"
	Validation  = "validation"
	ForkChoice  = "forkchoice"
	Slashing    = "slashing"
	Storage     = "storage"
	Mempool     = "mempool"
	Engine      = "engine"
	Genesis     = "genesis"
)

// Logger is the structured logging interface used throughout the core.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	NewWith(ctx ...interface{}) Logger
}

var base = mustBuild()

func mustBuild() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panic; logging must
		// never be fatal to consensus operation.
		l = zap.NewNop()
	}
	return l.Sugar()
}

type moduleLogger struct {
	module string
	sugar  *zap.SugaredLogger
}

// NewModuleLogger returns a Logger tagged with the given module name.
func NewModuleLogger(module string) Logger {
	return &moduleLogger{module: module, sugar: base.With("module", module)}
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.sugar.Debugw(msg, ctx...) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.sugar.Debugw(msg, ctx...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.sugar.Infow(msg, ctx...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.sugar.Warnw(msg, ctx...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.sugar.Errorw(msg, ctx...) }
func (l *moduleLogger) Crit(msg string, ctx ...interface{})  { l.sugar.Errorw(msg, ctx...) }

func (l *moduleLogger) NewWith(ctx ...interface{}) Logger {
	return &moduleLogger{module: l.module, sugar: l.sugar.With(ctx...)}
}
