package passwordless

import (
	"context"

	"github.com/goliatone/go-logger/glog"
)

// ResolveLogger returns the provider and logger to use for the given scope.
// A provider that resolves a logger wins, then logger, then a default glog logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if scoped := provider.GetLogger(name); scoped != nil {
			return provider, scoped
		}
	}

	if logger == nil {
		logger = defaultLogger().GetLogger(name)
	}

	return staticProvider{logger: logger}, logger
}

func defaultLogger() *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithName("passwordless"),
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithAddSource(false),
	)
}

// GlogProvider adapts a glog base logger to LoggerProvider.
func GlogProvider(base *glog.BaseLogger) LoggerProvider {
	return glogProvider{base: base}
}

type glogProvider struct {
	base *glog.BaseLogger
}

func (p glogProvider) GetLogger(name string) Logger {
	if p.base == nil {
		return nil
	}
	return p.base.GetLogger(name)
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any)                {}
func (noopLogger) Debug(string, ...any)                {}
func (noopLogger) Info(string, ...any)                 {}
func (noopLogger) Warn(string, ...any)                 {}
func (noopLogger) Error(string, ...any)                {}
func (noopLogger) Fatal(string, ...any)                {}
func (n noopLogger) WithContext(context.Context) Logger { return n }

// NoopLogger returns a logger that discards everything.
func NoopLogger() Logger {
	return noopLogger{}
}
