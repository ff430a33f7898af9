package scheduler

import (
	"time"

	"bambu-slicer-advisor/internal/logger"

	"github.com/sirupsen/logrus"
)

// SessionSweeper 可以清除閒置 session 的元件
type SessionSweeper interface {
	Sweep(idleTTL time.Duration) int
	Len() int
}

// SweepJob 是一個排程任務，用於清除閒置的 session
type SweepJob struct {
	sessions SessionSweeper
	idleTTL  time.Duration
}

// NewSweepJob 建立一個 SweepJob
func NewSweepJob(sessions SessionSweeper, idleTTL time.Duration) *SweepJob {
	return &SweepJob{sessions: sessions, idleTTL: idleTTL}
}

// Run 實現 cron.Job 介面 (github.com/robfig/cron/v3)
func (j *SweepJob) Run() {
	logger.Debug("資訊：執行排程任務 - 清除閒置 session...")
	removed := j.sessions.Sweep(j.idleTTL)
	if removed > 0 {
		logger.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": j.sessions.Len(),
			"idle_ttl":  j.idleTTL.String(),
		}).Info("資訊：閒置 session 清除完成。")
	}
}
