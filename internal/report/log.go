package report

import (
	"context"

	"github.com/yanun0323/logs"
)

// LogSink writes reports that filled or were rejected to the process log.
// Set Verbose to log every report, including resting adds.
type LogSink struct {
	Verbose bool
}

func (s LogSink) Record(_ context.Context, e Execution) error {
	if !s.Verbose && e.FilledVolume == 0 && !e.OutOfRange {
		return nil
	}
	logs.Infof("execution %s", e)
	return nil
}

func (LogSink) Close() error { return nil }
