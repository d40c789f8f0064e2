package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
	"tutorlink_app_echo/internal/services"
)

// MaterializeSessionsTaskDef turns active routine slots into dated sessions
// for the coming week. Runs recurring (weekly); materialization skips dates
// that already have a session, so overlapping runs are harmless.
type MaterializeSessionsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *MaterializeSessionsTaskDef) TaskID() string {
	return "materialize_sessions"
}

// HandleExecution materializes the upcoming week's sessions
func (t *MaterializeSessionsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	routines := services.NewRoutineService(db, nil, nil)
	sessions := services.NewSessionService(db, routines, nil)

	created, err := sessions.MaterializeWeek(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	log.Printf("[Task: materialize_sessions] created %d sessions", created)

	return map[string]interface{}{
		"status":  "success",
		"created": created,
	}, nil
}

// MaterializeSessionsTask is the singleton instance of MaterializeSessionsTaskDef
var MaterializeSessionsTask = &MaterializeSessionsTaskDef{}
