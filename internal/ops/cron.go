package ops

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type cronLogger struct {
	sugar *zap.SugaredLogger
}

// CronLogger adapts a zap logger to cron.Logger.
func CronLogger(logger *zap.Logger) cron.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return cronLogger{sugar: logger.Named("cron").Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler returns a seconds-aware cron that recovers panicking jobs and
// never overlaps a job with its previous run.
func NewScheduler(logger *zap.Logger) *cron.Cron {
	cl := CronLogger(logger)
	return cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}
