package session

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the live state of an analysis run as seen by stream
// consumers. Unlike workflows, sessions are ephemeral: they expire from the
// store shortly after the run ends.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session is the live view of one analysis run.
type Session struct {
	ID                uuid.UUID `json:"id"`
	WorkflowID        uuid.UUID `json:"workflow_id"`
	Company           string    `json:"company"`
	Status            Status    `json:"status"`
	CurrentAgent      string    `json:"current_agent,omitempty"`
	LastMessage       string    `json:"last_message,omitempty"`
	SectionsCompleted int       `json:"sections_completed"`
	TotalSections     int       `json:"total_sections"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// New creates a running session bound to a workflow.
func New(workflowID uuid.UUID, company string, totalSections int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            uuid.New(),
		WorkflowID:    workflowID,
		Company:       company,
		Status:        StatusRunning,
		TotalSections: totalSections,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Touch bumps the update timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
