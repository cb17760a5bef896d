package usecase

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/pkg/tasks"
)

// HealthStatus is the snapshot returned by the health endpoint.
type HealthStatus struct {
	Status        string       `json:"status"`
	Uptime        string       `json:"uptime"`
	Database      string       `json:"database"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	Tasks         *tasks.Stats `json:"tasks,omitempty"`
}

type IHealthUsecase interface {
	GetStatus(ctx context.Context) HealthStatus
}

type healthService struct {
	db        *gorm.DB
	runner    *tasks.Runner
	startedAt time.Time
}

func NewHealthService(db *gorm.DB, runner *tasks.Runner) IHealthUsecase {
	return &healthService{
		db:        db,
		runner:    runner,
		startedAt: time.Now(),
	}
}

func (s *healthService) GetStatus(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:   "ok",
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
		Database: "ok",
	}

	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	} else if err != nil {
		logrus.Debugf("[HEALTH] CPU sample failed: %v", err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.MemoryPercent = vm.UsedPercent
	} else {
		logrus.Debugf("[HEALTH] Memory sample failed: %v", err)
	}

	if s.runner != nil {
		stats := s.runner.GetStats()
		status.Tasks = &stats
	}

	return status
}
