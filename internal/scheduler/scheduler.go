// Package scheduler wires the background sweeps onto cron schedules:
// expired-reservation release every few minutes, course finalization
// hourly, and the minimum-capacity check once a day.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
)

// Sweeps is the part of the booking service the scheduler drives.
type Sweeps interface {
	ReapExpiredReservations(ctx context.Context) (int, error)
	FinalizeEndedCourses(ctx context.Context) (int, error)
	ConfirmMinimumCapacity(ctx context.Context) (booking.CapacityReport, error)
}

// Config holds the three cron expressions.
type Config struct {
	ReapSpec     string
	FinalizeSpec string
	CapacitySpec string
}

// DefaultConfig returns the stock schedules.
func DefaultConfig() Config {
	return Config{
		ReapSpec:     "*/5 * * * *",
		FinalizeSpec: "0 * * * *",
		CapacitySpec: "0 22 * * *",
	}
}

// Scheduler runs the sweeps on their cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	sweeps Sweeps
}

// New registers the sweeps with their schedules.
func New(sweeps Sweeps, config Config, logger *zap.Logger) (*Scheduler, error) {
	if sweeps == nil {
		return nil, fmt.Errorf("nil sweeps")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler := &Scheduler{
		cron:   cron.New(),
		logger: logger,
		sweeps: sweeps,
	}
	for _, job := range []struct {
		spec string
		name string
		run  func()
	}{
		{config.ReapSpec, "reap_expired_reservations", scheduler.runReap},
		{config.FinalizeSpec, "finalize_ended_courses", scheduler.runFinalize},
		{config.CapacitySpec, "confirm_minimum_capacity", scheduler.runCapacity},
	} {
		if _, err := scheduler.cron.AddFunc(job.spec, job.run); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}
	return scheduler, nil
}

// Start begins running scheduled sweeps.
func (scheduler *Scheduler) Start() {
	scheduler.cron.Start()
}

// Stop halts scheduling and waits for in-flight sweeps to finish.
func (scheduler *Scheduler) Stop() {
	<-scheduler.cron.Stop().Done()
}

func (scheduler *Scheduler) runReap() {
	reaped, err := scheduler.sweeps.ReapExpiredReservations(context.Background())
	if err != nil {
		scheduler.logger.Error("reservation sweep failed", zap.Error(err))
		return
	}
	if reaped > 0 {
		scheduler.logger.Info("released expired reservations", zap.Int("count", reaped))
	}
}

func (scheduler *Scheduler) runFinalize() {
	finalized, err := scheduler.sweeps.FinalizeEndedCourses(context.Background())
	if err != nil {
		scheduler.logger.Error("finalize sweep failed", zap.Error(err))
		return
	}
	if finalized > 0 {
		scheduler.logger.Info("finalized ended courses", zap.Int("count", finalized))
	}
}

func (scheduler *Scheduler) runCapacity() {
	report, err := scheduler.sweeps.ConfirmMinimumCapacity(context.Background())
	if err != nil {
		scheduler.logger.Error("capacity sweep failed", zap.Error(err))
		return
	}
	scheduler.logger.Info("minimum capacity check complete",
		zap.Int("confirmed", report.Confirmed),
		zap.Int("cancelled", report.Cancelled))
}
