// Package logger provides structured logging backed by zap.
// A service name is attached to every entry so multi-process deployments
// can tell log streams apart.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

var (
	log         = zap.NewNop()
	serviceName = "papertrader"
)

// Init builds the production JSON logger for the given service name.
// Until Init is called, all logging is a no-op (useful in tests).
func Init(service string) error {
	l, err := zap.NewProduction()
	if err != nil {
		return err
	}
	serviceName = service
	log = l
	return nil
}

// Sync flushes buffered entries. Call on shutdown.
func Sync() {
	_ = log.Sync()
}

func Info(format string, args ...interface{}) {
	log.With(zap.String("service", serviceName)).Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	log.With(zap.String("service", serviceName)).Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	log.With(zap.String("service", serviceName)).Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	log.With(zap.String("service", serviceName)).Fatal(fmt.Sprintf(format, args...))
}
