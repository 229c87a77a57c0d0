package longterm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contextcache/hybridmemory/types"
)

// RedisRecordStore persists Records as Redis JSON documents keyed
// "ctxitem:{id}", adapted from the teacher's backends/remote Redis
// connection plumbing (parseRedisURL, JSON.SET/JSON.GET).
type RedisRecordStore struct {
	client *redis.Client
	prefix string
}

type redisRecord struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	CreatedAt     int64          `json:"created_at"`
	Priority      types.Priority `json:"priority"`
	Kind          types.Kind     `json:"kind"`
	Metadata      types.Metadata `json:"metadata"`
	TokenEstimate int            `json:"token_estimate"`
}

// parseRedisURL parses a redis:// or rediss:// URL, or a bare host:port, in
// the same style as the teacher's backends/remote/redis.go.
func parseRedisURL(connectionString string) (*redis.Options, error) {
	if strings.HasPrefix(connectionString, "redis://") || strings.HasPrefix(connectionString, "rediss://") {
		parsed, err := url.Parse(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL: %w", err)
		}
		opts := &redis.Options{Addr: parsed.Host}
		if parsed.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if parsed.User != nil {
			opts.Username = parsed.User.Username()
			if password, ok := parsed.User.Password(); ok {
				opts.Password = password
			}
		}
		if parsed.Path != "" && parsed.Path != "/" {
			if db, err := strconv.Atoi(strings.TrimPrefix(parsed.Path, "/")); err == nil {
				opts.DB = db
			}
		}
		return opts, nil
	}
	return &redis.Options{Addr: connectionString}, nil
}

// NewRedisRecordStore connects to Redis at connectionString and returns a
// RecordStore keying records under prefix+"ctxitem:".
func NewRedisRecordStore(connectionString string, db int, prefix string) (*RedisRecordStore, error) {
	opts, err := parseRedisURL(connectionString)
	if err != nil {
		return nil, err
	}
	if db != 0 {
		opts.DB = db
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if prefix == "" {
		prefix = "hybridmemory:"
	}
	return &RedisRecordStore{client: client, prefix: prefix}, nil
}

func (s *RedisRecordStore) key(id string) string {
	return s.prefix + "ctxitem:" + id
}

// Put implements RecordStore.
func (s *RedisRecordStore) Put(ctx context.Context, record Record) error {
	doc := redisRecord{
		ID:            record.ID,
		Content:       record.Content,
		CreatedAt:     record.CreatedAt.Unix(),
		Priority:      record.Priority,
		Kind:          record.Kind,
		Metadata:      record.Metadata,
		TokenEstimate: record.TokenEstimate,
	}
	_, err := s.client.JSONSet(ctx, s.key(record.ID), "$", doc).Result()
	if err != nil {
		return fmt.Errorf("failed to set record in Redis: %w", err)
	}
	return nil
}

// Get implements RecordStore.
func (s *RedisRecordStore) Get(ctx context.Context, id string) (Record, bool, error) {
	result, err := s.client.JSONGet(ctx, s.key(id), "$").Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to get record from Redis: %w", err)
	}

	var docs []redisRecord
	if err := json.Unmarshal([]byte(result), &docs); err != nil {
		return Record{}, false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if len(docs) == 0 {
		return Record{}, false, nil
	}
	return fromRedisRecord(docs[0]), true, nil
}

// Delete implements RecordStore.
func (s *RedisRecordStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete record from Redis: %w", err)
	}
	return nil
}

// Scan implements RecordStore using SCAN over the record key prefix.
func (s *RedisRecordStore) Scan(ctx context.Context) ([]Record, error) {
	pattern := s.prefix + "ctxitem:*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan records from Redis: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		result, err := s.client.JSONGet(ctx, k, "$").Result()
		if err != nil {
			continue
		}
		var docs []redisRecord
		if err := json.Unmarshal([]byte(result), &docs); err != nil || len(docs) == 0 {
			continue
		}
		out = append(out, fromRedisRecord(docs[0]))
	}
	return out, nil
}

// Close closes the underlying Redis connection.
func (s *RedisRecordStore) Close() error {
	return s.client.Close()
}

func fromRedisRecord(doc redisRecord) Record {
	return Record{
		ID:            doc.ID,
		Content:       doc.Content,
		CreatedAt:     time.Unix(doc.CreatedAt, 0),
		Priority:      doc.Priority,
		Kind:          doc.Kind,
		Metadata:      doc.Metadata,
		TokenEstimate: doc.TokenEstimate,
	}
}
