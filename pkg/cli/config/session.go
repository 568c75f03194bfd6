package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/repository/memory"
	"github.com/secmon-lab/syllabus/pkg/repository/redis"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Session holds CLI flags for the conversation history store
type Session struct {
	backend       string
	redisAddr     string
	redisPassword string
	redisDB       int
	ttl           time.Duration
}

// Flags returns CLI flags for session configuration
func (s *Session) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "session-backend",
			Usage:       "Session history backend [memory|redis]",
			Category:    "Session",
			Value:       "memory",
			Sources:     cli.EnvVars("SYLLABUS_SESSION_BACKEND"),
			Destination: &s.backend,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address (required when using redis backend)",
			Category:    "Session",
			Sources:     cli.EnvVars("SYLLABUS_REDIS_ADDR"),
			Destination: &s.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Session",
			Sources:     cli.EnvVars("SYLLABUS_REDIS_PASSWORD"),
			Destination: &s.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Session",
			Sources:     cli.EnvVars("SYLLABUS_REDIS_DB"),
			Destination: &s.redisDB,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Expiry of idle session histories",
			Category:    "Session",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("SYLLABUS_SESSION_TTL"),
			Destination: &s.ttl,
		},
	}
}

// LogAttrs returns log attributes for the session configuration
func (s *Session) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("backend", s.backend),
		slog.String("redis_addr", s.redisAddr),
		slog.Int("redis_db", s.redisDB),
		slog.Duration("ttl", s.ttl),
	}
}

// Configure creates the session store keeping maxTurns turns per session.
// The returned function releases the backend connection.
func (s *Session) Configure(ctx context.Context, maxTurns int) (interfaces.SessionStore, func(), error) {
	switch s.backend {
	case "memory":
		return memory.NewSessionStore(maxTurns, memory.WithSessionTTL(s.ttl)), func() {}, nil

	case "redis":
		if s.redisAddr == "" {
			return nil, nil, goerr.Wrap(ErrMissingOption, "redis-addr is required when using redis backend",
				goerr.V(OptionKey, "redis-addr"))
		}
		client, err := redis.Dial(ctx, s.redisAddr, s.redisPassword, s.redisDB)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to connect redis", goerr.V("addr", s.redisAddr))
		}
		logging.Default().Info("Using redis session store", "addr", s.redisAddr, "db", s.redisDB)
		closer := func() {
			if err := client.Close(); err != nil {
				logging.Default().Warn("failed to close redis client", "error", err)
			}
		}
		return redis.New(client, maxTurns, redis.WithTTL(s.ttl)), closer, nil

	default:
		return nil, nil, goerr.Wrap(ErrInvalidBackend, "invalid session backend", goerr.V(BackendKey, s.backend))
	}
}
