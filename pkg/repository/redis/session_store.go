package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

const (
	DefaultKeyPrefix = "syllabus:session:"
	DefaultTTL       = 24 * time.Hour
)

// SessionStore keeps each session's history as a capped Redis list of JSON
// encoded turns.
type SessionStore struct {
	client    goredis.UniversalClient
	maxTurns  int
	ttl       time.Duration
	keyPrefix string
}

var _ interfaces.SessionStore = &SessionStore{}

type Option func(*SessionStore)

func WithTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		s.ttl = ttl
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *SessionStore) {
		s.keyPrefix = prefix
	}
}

// New creates a store keeping at most maxTurns turns per session. A
// non-positive maxTurns keeps every turn.
func New(client goredis.UniversalClient, maxTurns int, opts ...Option) *SessionStore {
	s := &SessionStore{
		client:    client,
		maxTurns:  maxTurns,
		ttl:       DefaultTTL,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to a single Redis server and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", addr), goerr.V("db", db))
	}
	return client, nil
}

func (s *SessionStore) key(sessionID model.SessionID) string {
	return s.keyPrefix + string(sessionID)
}

func (s *SessionStore) GetHistory(ctx context.Context, sessionID model.SessionID, limit int) ([]model.Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	values, err := s.client.LRange(ctx, s.key(sessionID), start, -1).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session history", goerr.V(model.SessionIDKey, sessionID))
	}

	turns := make([]model.Turn, 0, len(values))
	for _, v := range values {
		var turn model.Turn
		if err := json.Unmarshal([]byte(v), &turn); err != nil {
			return nil, goerr.Wrap(err, "failed to decode session turn", goerr.V(model.SessionIDKey, sessionID))
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *SessionStore) Append(ctx context.Context, sessionID model.SessionID, turns ...model.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i, turn := range turns {
		raw, err := json.Marshal(turn)
		if err != nil {
			return goerr.Wrap(err, "failed to encode session turn", goerr.V(model.SessionIDKey, sessionID))
		}
		values[i] = string(raw)
	}

	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.maxTurns > 0 {
			pipe.LTrim(ctx, key, -int64(s.maxTurns), -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append session history", goerr.V(model.SessionIDKey, sessionID))
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, sessionID model.SessionID) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return goerr.Wrap(err, "failed to clear session history", goerr.V(model.SessionIDKey, sessionID))
	}
	return nil
}
