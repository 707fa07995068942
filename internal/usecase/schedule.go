package usecase

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/juju/clock"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/infrastructure/metrics"
)

// Decision is the outcome of one scheduler tick for one config.
type Decision int

const (
	DecisionRun Decision = iota
	DecisionSkipQuotaReached
	DecisionSkipNotASlot
)

func (d Decision) String() string {
	switch d {
	case DecisionRun:
		return "run"
	case DecisionSkipQuotaReached:
		return "skip_quota_reached"
	case DecisionSkipNotASlot:
		return "skip_not_a_slot"
	default:
		return "unknown"
	}
}

// AllowedHours spreads timesPerDay runs evenly over 24 hours, rounding each
// slot to the nearest hour. The result is sorted and free of duplicates.
func AllowedHours(timesPerDay int) []int {
	if timesPerDay <= 0 {
		return nil
	}

	interval := 24.0 / float64(timesPerDay)
	hours := make([]int, 0, timesPerDay)
	for i := 0; i < timesPerDay; i++ {
		hour := int(math.Round(float64(i)*interval)) % 24
		if !slices.Contains(hours, hour) {
			hours = append(hours, hour)
		}
	}
	slices.Sort(hours)
	return hours
}

// Schedule decides, on every hourly tick, which configs are due.
type Schedule struct {
	configs domain.ConfigStore
	runner  domain.BackupRunner
	clock   clock.Clock
	logger  Logger
}

func NewSchedule(configs domain.ConfigStore, runner domain.BackupRunner, clk clock.Clock, logger Logger) *Schedule {
	return &Schedule{
		configs: configs,
		runner:  runner,
		clock:   clk,
		logger:  logger,
	}
}

// Tick runs the backup of cfg when now is one of its slots and the daily
// quota allows it. The runner owns the execution counter.
func (s *Schedule) Tick(ctx context.Context, cfg *domain.BackupConfig, now time.Time) (Decision, error) {
	n := cfg.TimesPerDay
	if n <= 0 || !slices.Contains(AllowedHours(n), now.Hour()) {
		return DecisionSkipNotASlot, nil
	}

	cfg.RollDay(now)
	if cfg.ExecutionsToday >= n {
		return DecisionSkipQuotaReached, nil
	}
	// The slot of this hour was already used by an earlier tick.
	if cfg.RanInHour(now) {
		return DecisionSkipQuotaReached, nil
	}

	_, err := s.runner.Run(ctx, cfg)
	return DecisionRun, err
}

// TickAll ticks every registered config. A failing config is logged and
// never stops the others.
func (s *Schedule) TickAll(ctx context.Context) error {
	configs, err := s.configs.ListConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}

	now := s.clock.Now()
	ran := 0
	for _, cfg := range configs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		decision, err := s.Tick(ctx, cfg, now)
		metrics.RecordDecision(decision.String())
		if decision == DecisionRun {
			ran++
		}
		if err != nil {
			s.logger.Errorf("[%s] Scheduled backup failed: %v", cfg.Database, err)
			continue
		}
		s.logger.Debugf("[%s] Tick at %s: %s (%d/%d today)",
			cfg.Database, now.Format("15:04"), decision, cfg.ExecutionsToday, cfg.TimesPerDay)
	}

	s.logger.Infof("Scheduler tick done: %d of %d config(s) ran", ran, len(configs))
	return nil
}

// Execute is the cron entry point.
func (s *Schedule) Execute(ctx context.Context) error {
	return s.TickAll(ctx)
}
