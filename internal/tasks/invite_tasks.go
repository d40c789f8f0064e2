package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
	"tutorlink_app_echo/internal/services"
)

// SweepExpiredInvitesTaskDef expires pending invites past their deadline.
// Runs recurring (hourly); the invite engine refuses late payments on its
// own, so sweep lag never admits one.
type SweepExpiredInvitesTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *SweepExpiredInvitesTaskDef) TaskID() string {
	return "sweep_expired_invites"
}

// HandleExecution flips expired invites and voids stale pending proposals
func (t *SweepExpiredInvitesTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	now := time.Now()

	invites := services.NewInviteService(db, services.NewRoutineService(db, nil, nil), nil)
	expiredInvites, err := invites.SweepExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	staleAfter := 14 * 24 * time.Hour
	if days, ok := task.Arguments["proposal_stale_days"].(float64); ok && days > 0 {
		staleAfter = time.Duration(days) * 24 * time.Hour
	}
	proposals := services.NewProposalService(db, nil, nil, nil, false)
	expiredProposals, err := proposals.ExpireStale(ctx, staleAfter, now)
	if err != nil {
		return nil, err
	}

	log.Printf("[Task: sweep_expired_invites] expired %d invites, %d proposals", expiredInvites, expiredProposals)

	return map[string]interface{}{
		"status":            "success",
		"expired_invites":   expiredInvites,
		"expired_proposals": expiredProposals,
	}, nil
}

// SweepExpiredInvitesTask is the singleton instance of SweepExpiredInvitesTaskDef
var SweepExpiredInvitesTask = &SweepExpiredInvitesTaskDef{}
