package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"pitchbook/internal/domain/workflow"
	"pitchbook/pkg/errors"
)

// WorkflowRepository implements workflow.Repository
type WorkflowRepository struct {
	db DBTX
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db DBTX) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a pending workflow
func (r *WorkflowRepository) Create(ctx context.Context, w *workflow.Workflow) error {
	query := `
		INSERT INTO workflows (id, company, status, task, messages, sections, failure_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		w.ID, w.Company, w.Status, w.Task, w.Messages, w.Sections, w.FailureNote,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "create workflow")
	}
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	query := `
		SELECT id, company, status, task, messages, sections, failure_note,
		       created_at, updated_at, completed_at
		FROM workflows
		WHERE id = $1
	`

	w := &workflow.Workflow{}
	err := r.db.GetContext(ctx, w, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "workflow %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get workflow by id")
	}
	return w, nil
}

// List returns the most recent workflows
func (r *WorkflowRepository) List(ctx context.Context, limit int) ([]*workflow.Workflow, error) {
	query := `
		SELECT id, company, status, task, messages, sections, failure_note,
		       created_at, updated_at, completed_at
		FROM workflows
		ORDER BY created_at DESC
		LIMIT $1
	`

	var out []*workflow.Workflow
	if err := r.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, errors.Wrap(err, "list workflows")
	}
	return out, nil
}

// ListByStatus returns the most recent workflows in the given status
func (r *WorkflowRepository) ListByStatus(ctx context.Context, status workflow.Status, limit int) ([]*workflow.Workflow, error) {
	query := `
		SELECT id, company, status, task, messages, sections, failure_note,
		       created_at, updated_at, completed_at
		FROM workflows
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var out []*workflow.Workflow
	if err := r.db.SelectContext(ctx, &out, query, status, limit); err != nil {
		return nil, errors.Wrap(err, "list workflows by status")
	}
	return out, nil
}

// AppendMessage adds one message to the stored transcript
func (r *WorkflowRepository) AppendMessage(ctx context.Context, id uuid.UUID, msg workflow.Message) error {
	entry, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	query := `
		UPDATE workflows
		SET messages = messages || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, entry)
	if err != nil {
		return errors.Wrap(err, "append workflow message")
	}
	return checkAffected(res, id)
}

// UpdateStatus moves a workflow to the given status; terminal statuses stamp
// completed_at
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error {
	query := `
		UPDATE workflows
		SET status = $2,
		    updated_at = NOW(),
		    completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, status.Terminal())
	if err != nil {
		return errors.Wrap(err, "update workflow status")
	}
	return checkAffected(res, id)
}

// MarkRunning moves a pending workflow to running
func (r *WorkflowRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE workflows
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, workflow.StatusRunning)
	if err != nil {
		return errors.Wrap(err, "mark workflow running")
	}
	return checkAffected(res, id)
}

// Complete stores the final transcript and sections and closes the workflow
func (r *WorkflowRepository) Complete(ctx context.Context, id uuid.UUID, messages workflow.Messages, sections workflow.Sections) error {
	query := `
		UPDATE workflows
		SET status = $2, messages = $3, sections = $4,
		    updated_at = NOW(), completed_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, workflow.StatusCompleted, messages, sections)
	if err != nil {
		return errors.Wrap(err, "complete workflow")
	}
	return checkAffected(res, id)
}

// Fail closes the workflow as failed with the triggering cause
func (r *WorkflowRepository) Fail(ctx context.Context, id uuid.UUID, cause string) error {
	query := `
		UPDATE workflows
		SET status = $2, failure_note = $3,
		    updated_at = NOW(), completed_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, workflow.StatusFailed, cause)
	if err != nil {
		return errors.Wrap(err, "fail workflow")
	}
	return checkAffected(res, id)
}

func checkAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "workflow %s", id)
	}
	return nil
}
