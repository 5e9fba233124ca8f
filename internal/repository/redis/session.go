package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	redisadapter "pitchbook/internal/adapters/redis"
	"pitchbook/internal/domain/session"
	"pitchbook/pkg/errors"
)

const keyPrefix = "pitchbook:session:"

// SessionRepository implements session.Repository using Redis with TTL
type SessionRepository struct {
	client *redisadapter.Client
	ttl    time.Duration
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(client *redisadapter.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{client: client, ttl: ttl}
}

// Save stores a session with the configured TTL
func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	s.Touch()
	if err := r.client.Set(ctx, r.getKey(s.ID), s, r.ttl); err != nil {
		return errors.Wrapf(err, "save session %s", s.ID)
	}
	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	var s session.Session
	err := r.client.Get(ctx, r.getKey(id), &s)
	if redisadapter.IsNil(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s", id)
	}
	return &s, nil
}

// List returns all live sessions, newest first
func (r *SessionRepository) List(ctx context.Context) ([]*session.Session, error) {
	keys, err := r.client.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, errors.Wrap(err, "list session keys")
	}

	out := make([]*session.Session, 0, len(keys))
	for _, key := range keys {
		var s session.Session
		if err := r.client.Get(ctx, key, &s); err != nil {
			if redisadapter.IsNil(err) {
				continue // expired between KEYS and GET
			}
			return nil, errors.Wrapf(err, "get session key %s", key)
		}
		out = append(out, &s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Delete(ctx, r.getKey(id)); err != nil {
		return errors.Wrapf(err, "delete session %s", id)
	}
	return nil
}

func (r *SessionRepository) getKey(id uuid.UUID) string {
	return fmt.Sprintf("%s%s", keyPrefix, id)
}
