// internal/pkg/logger/asynq.go
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// AsynqLogger adapts slog to the asynq.Logger interface.
type AsynqLogger struct {
	l *slog.Logger
}

func NewAsynqLogger(l *slog.Logger) *AsynqLogger {
	return &AsynqLogger{l: l.With(slog.String("component", "asynq"))}
}

func (a *AsynqLogger) Debug(args ...interface{}) { a.log(slog.LevelDebug, args...) }
func (a *AsynqLogger) Info(args ...interface{})  { a.log(slog.LevelInfo, args...) }
func (a *AsynqLogger) Warn(args ...interface{})  { a.log(slog.LevelWarn, args...) }
func (a *AsynqLogger) Error(args ...interface{}) { a.log(slog.LevelError, args...) }

func (a *AsynqLogger) Fatal(args ...interface{}) {
	a.log(slog.LevelError, args...)
	os.Exit(1)
}

func (a *AsynqLogger) log(level slog.Level, args ...interface{}) {
	a.l.Log(context.Background(), level, fmt.Sprint(args...))
}
