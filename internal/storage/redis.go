package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"

	"shawbot/internal/cursor"
	logx "shawbot/pkg/logx"
)

const (
	defaultRedisPrefix   = "shawbot:"
	defaultRedisAuditCap = 10000
)

// redisStore keeps the cursor in a hash (<prefix>cursor) and the audit trail
// in a capped list (<prefix>audit, newest first). Durability of acknowledged
// writes depends on the server's appendfsync setting.
type redisStore struct {
	client   *backend.Client
	log      logx.Logger
	prefix   string
	auditCap int64
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(client, cfg.Redis.Prefix, cfg.Redis.AuditCap, log), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *backend.Client, prefix string, auditCap int64, log logx.Logger) Store {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if auditCap <= 0 {
		auditCap = defaultRedisAuditCap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{client: client, log: log, prefix: prefix, auditCap: auditCap}
}

func (s *redisStore) key(name string) string { return s.prefix + name }

func (s *redisStore) GetCursor(ctx context.Context) (cursor.Position, error) {
	m, err := s.client.HGetAll(ctx, s.key("cursor")).Result()
	if err != nil {
		return cursor.Position{}, err
	}
	if len(m) == 0 {
		return cursor.Position{}, cursor.ErrNotFound
	}
	doc, err := strconv.Atoi(m["doc"])
	if err != nil {
		return cursor.Position{}, fmt.Errorf("cursor doc %q: %w", m["doc"], err)
	}
	frag, err := strconv.Atoi(m["frag"])
	if err != nil {
		return cursor.Position{}, fmt.Errorf("cursor frag %q: %w", m["frag"], err)
	}
	return cursor.Position{Doc: doc, Frag: frag}, nil
}

func (s *redisStore) SetCursor(ctx context.Context, p cursor.Position) error {
	return s.client.HSet(ctx, s.key("cursor"), "doc", p.Doc, "frag", p.Frag).Err()
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := s.key("audit")
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, s.auditCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Close() error { return s.client.Close() }
