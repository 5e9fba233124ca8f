package workflow

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines durable storage for workflows.
type Repository interface {
	Create(ctx context.Context, w *Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error)
	List(ctx context.Context, limit int) ([]*Workflow, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Workflow, error)

	// AppendMessage adds one message to the stored transcript.
	AppendMessage(ctx context.Context, id uuid.UUID, msg Message) error

	// UpdateStatus moves a workflow to the given status. Terminal statuses
	// also stamp completed_at.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// MarkRunning moves a pending workflow to running.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// Complete stores the final transcript and sections and closes the
	// workflow as completed.
	Complete(ctx context.Context, id uuid.UUID, messages Messages, sections Sections) error

	// Fail closes the workflow as failed, keeping the triggering cause
	// for diagnostics.
	Fail(ctx context.Context, id uuid.UUID, cause string) error
}
