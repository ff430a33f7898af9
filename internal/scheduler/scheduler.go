package scheduler

import (
	"fmt"
	"time"

	"bambu-slicer-advisor/internal/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler 結構
type Scheduler struct {
	cron     *cron.Cron
	sweepJob *SweepJob
}

// NewScheduler 接收 Cron 表達式 (含秒欄位)
// Cron 表達式為空時不註冊任務
func NewScheduler(sessions SessionSweeper, idleTTL time.Duration, sweepCronSpec string) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	sweepJob := NewSweepJob(sessions, idleTTL)

	if sweepCronSpec != "" {
		if _, err := c.AddJob(sweepCronSpec, sweepJob); err != nil {
			return nil, fmt.Errorf("無法新增 session 清除任務到排程器 (spec: %s): %w", sweepCronSpec, err)
		}
		logger.WithField("spec", sweepCronSpec).Info("資訊：session 清除任務已註冊。")
	} else {
		logger.Warn("警告：未提供 session 清除任務的 Cron 表達式，該任務將不會被排程。")
	}

	return &Scheduler{
		cron:     c,
		sweepJob: sweepJob,
	}, nil
}

// Entries 已註冊的任務數量
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start 非阻塞啟動
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("資訊：排程器已非阻塞啟動。")
}

// Stop 等待執行中的任務結束，最多 10 秒
func (s *Scheduler) Stop() {
	logger.Info("資訊：正在停止排程器...")
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logger.Info("資訊：排程器已優雅停止，所有運行中任務已完成。")
	case <-time.After(10 * time.Second):
		logger.Warn("警告：排程器停止超時，可能仍有任務在執行。")
	}
}
