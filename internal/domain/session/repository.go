package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines expiring storage for live sessions.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
