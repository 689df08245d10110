package reviewflow

import (
	"time"

	"go.uber.org/zap"
)

type syncStat struct {
	StartTime time.Time
	EndTime   time.Time
	Seen      uint
	Evaluated uint
	Queued    uint
	Merged    uint
	Failures  uint
}

func (s *syncStat) LogFields() []zap.Field {
	return []zap.Field{
		zap.Duration("sync_duration", s.EndTime.Sub(s.StartTime)),
		zap.Uint("pr_sync.seen", s.Seen),
		zap.Uint("pr_sync.evaluated", s.Evaluated),
		zap.Uint("pr_sync.queued", s.Queued),
		zap.Uint("pr_sync.merged", s.Merged),
		zap.Uint("pr_sync.failures", s.Failures),
	}
}
