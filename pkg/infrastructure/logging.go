// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes Fx framework events through a zap.Logger so that
// dependency graph assembly shows up in the application's own log stream.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter creates an fxevent.Logger backed by the given Zap logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger}
}

// LogEvent implements fxevent.Logger. Graph assembly details log at debug;
// start/stop milestones and failures log at info and error.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		a.logger.Debug("OnStart hook executing",
			zap.String("caller", e.CallerName),
			zap.String("callee", e.FunctionName))
	case *fxevent.OnStartExecuted:
		a.hookExecuted("OnStart", e.CallerName, e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		a.logger.Debug("OnStop hook executing",
			zap.String("caller", e.CallerName),
			zap.String("callee", e.FunctionName))
	case *fxevent.OnStopExecuted:
		a.hookExecuted("OnStop", e.CallerName, e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		if e.Err != nil {
			a.logger.Error("supplied value failed",
				zap.String("type", e.TypeName), zap.Error(e.Err))
		} else {
			a.logger.Debug("supplied", zap.String("type", e.TypeName))
		}
	case *fxevent.Provided:
		if e.Err != nil {
			a.logger.Error("constructor failed",
				zap.String("constructor", e.ConstructorName), zap.Error(e.Err))
		} else {
			a.logger.Debug("provided",
				zap.String("constructor", e.ConstructorName),
				zap.Strings("types", e.OutputTypeNames))
		}
	case *fxevent.Invoking:
		a.logger.Debug("invoking", zap.String("function", e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			a.logger.Error("invoke failed",
				zap.String("function", e.FunctionName), zap.Error(e.Err))
		}
	case *fxevent.Stopping:
		a.logger.Info("received signal",
			zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.Stopped:
		if e.Err != nil {
			a.logger.Error("stop failed", zap.Error(e.Err))
		} else {
			a.logger.Info("stopped")
		}
	case *fxevent.RollingBack:
		a.logger.Error("start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		if e.Err != nil {
			a.logger.Error("rollback failed", zap.Error(e.Err))
		}
	case *fxevent.Started:
		if e.Err != nil {
			a.logger.Error("start failed", zap.Error(e.Err))
		} else {
			a.logger.Info("started")
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			a.logger.Error("custom logger initialization failed", zap.Error(e.Err))
		} else {
			a.logger.Debug("initialized custom fxevent.Logger",
				zap.String("constructor", e.ConstructorName))
		}
	}
}

func (a *FxLoggerAdapter) hookExecuted(hook, caller, callee, runtime string, err error) {
	if err != nil {
		a.logger.Error(hook+" hook failed",
			zap.String("caller", caller),
			zap.String("callee", callee),
			zap.Error(err))
		return
	}
	a.logger.Debug(hook+" hook executed",
		zap.String("caller", caller),
		zap.String("callee", callee),
		zap.String("runtime", runtime))
}
