package interfaces

import (
	"context"
	"time"
)

// PassStats describes the most recent completed polling pass.
type PassStats struct {
	PassID        string    `json:"passId"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	UsersTotal    int       `json:"usersTotal"`
	UsersSkipped  int       `json:"usersSkipped"`
	UsersFailed   int       `json:"usersFailed"`
	MessagesSeen  int       `json:"messagesSeen"`
	NotificationsSent int   `json:"notificationsSent"`
}

// PollOrchestrator runs one polling pass across all configured users.
type PollOrchestrator interface {
	RunPass(ctx context.Context) error
	LastPass() PassStats
}
