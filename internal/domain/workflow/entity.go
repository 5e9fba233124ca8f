package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of one pitchbook run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Message is one persisted conversation entry.
type Message struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Messages is stored as a JSONB column.
type Messages []Message

func (m Messages) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *Messages) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for Messages: %T", src)
	}
}

// Section is the persisted snapshot of one pitchbook section.
type Section struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Responses []string `json:"responses,omitempty"`
}

// Sections is stored as a JSONB column.
type Sections []Section

func (s Sections) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *Sections) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for Sections: %T", src)
	}
}

// Workflow is one pitchbook analysis run and its durable outcome.
type Workflow struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Company     string     `db:"company" json:"company"`
	Status      Status     `db:"status" json:"status"`
	Task        string     `db:"task" json:"task"`
	Messages    Messages   `db:"messages" json:"messages"`
	Sections    Sections   `db:"sections" json:"sections"`
	FailureNote string     `db:"failure_note" json:"failure_note,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// New creates a pending workflow for a company analysis.
func New(company, task string) *Workflow {
	return &Workflow{
		ID:      uuid.New(),
		Company: company,
		Status:  StatusPending,
		Task:    task,
	}
}

// Terminal reports whether the workflow reached a final status.
func (w *Workflow) Terminal() bool {
	return w.Status.Terminal()
}
