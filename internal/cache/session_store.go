package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"rolechat/internal/model"
)

// SessionStore keeps auth sessions in redis; keys expire with the session.
type SessionStore struct {
	client *redisv9.Client
}

func NewSessionStore(client *redisv9.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Save(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis save session failed: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session failed: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) UpdateRole(ctx context.Context, id, role string) error {
	key := s.key(id)
	txf := func(tx *redisv9.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redisv9.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var session model.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return err
		}
		session.Role = role
		payload, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, key, payload, redisv9.KeepTTL)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, key); err != nil {
		return fmt.Errorf("redis update session role failed: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (s *SessionStore) key(id string) string {
	return "chat:session:" + id
}
