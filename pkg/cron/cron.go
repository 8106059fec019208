// Package cron wires the background jobs of the service. The only ambient
// mutation in the core is the invitation expiry sweep.
package cron

import (
	"context"
	"time"

	"github.com/heritago/backend/internal/services"
	"github.com/heritago/backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Start schedules the invitation expiry sweep and returns the running cron
// so the caller can Stop it on shutdown.
func Start(schedule string, invitations *services.InvitationService) *cron.Cron {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := invitations.SweepExpired(ctx); err != nil {
			logger.Error("invitation_sweep_failed", err, nil)
		}
	})
	if err != nil {
		logger.Error("invitation_sweep_schedule_failed", err, map[string]interface{}{
			"schedule": schedule,
		})
		return c
	}

	c.Start()
	logger.Info("cron_started", map[string]interface{}{
		"invitation_sweep": schedule,
	})
	return c
}
