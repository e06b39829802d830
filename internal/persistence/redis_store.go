package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tlahtinen/governor/pkg/api"
)

// RedisStore is a Store backed by Redis.
// It uses a simple key structure:
//
//	<prefix>proc:<id>            => gob-encoded redisRecordPayload
//	<prefix>idx:all              => SET of all procedure IDs
//	<prefix>idx:kind:<kind>      => SET of procedure IDs for a given kind
//	<prefix>idx:status:<status>  => SET of procedure IDs for a given status
//
// The indexes are best-effort; they are always updated on Save/Update, and
// List uses set operations for filtering and re-checks the payload.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

type redisRecordPayload struct {
	ID       string
	Kind     string
	Status   string
	Snapshot []byte
	Error    string
}

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "governor:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "governor:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyRecord(id string) string {
	return s.prefix + "proc:" + id
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyKind(kind api.OperationType) string {
	return s.prefix + "idx:kind:" + string(kind)
}

func (s *RedisStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

func encodeRedisRecord(rec *Record) ([]byte, error) {
	payload := redisRecordPayload{
		ID:       rec.ID,
		Kind:     string(rec.Kind),
		Status:   string(rec.Status),
		Snapshot: rec.Snapshot,
		Error:    rec.Error,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisRecord(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrRecordNotFound
	}
	var payload redisRecordPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}
	return &Record{
		ID:       payload.ID,
		Kind:     api.OperationType(payload.Kind),
		Status:   api.Status(payload.Status),
		Snapshot: payload.Snapshot,
		Error:    payload.Error,
	}, nil
}

func (s *RedisStore) write(rec *Record) error {
	ctx := context.Background()

	data, err := encodeRedisRecord(rec)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyRecord(rec.ID), data, 0).Err(); err != nil {
		return err
	}

	// Index updates: we just re-add; some stale index entries may remain if
	// the status changed, but List filters by payload.
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), rec.ID)
	pipe.SAdd(ctx, s.keyKind(rec.Kind), rec.ID)
	pipe.SAdd(ctx, s.keyStatus(rec.Status), rec.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisStore) Save(rec *Record) error {
	return s.write(rec)
}

func (s *RedisStore) Update(rec *Record) error {
	ctx := context.Background()

	exists, err := s.client.Exists(ctx, s.keyRecord(rec.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrRecordNotFound
	}
	return s.write(rec)
}

func (s *RedisStore) Get(id string) (*Record, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.keyRecord(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return decodeRedisRecord(data)
}

func (s *RedisStore) List(filter Filter) ([]*Record, error) {
	ctx := context.Background()

	var ids []string
	var err error

	switch {
	case filter.Kind != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx,
			s.keyKind(filter.Kind),
			s.keyStatus(filter.Status),
		).Result()
	case filter.Kind != "":
		ids, err = s.client.SMembers(ctx, s.keyKind(filter.Kind)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyRecord(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var records []*Record
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		rec, err := decodeRedisRecord(data)
		if err != nil {
			return nil, err
		}
		// Stale index entries are possible after status changes.
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) Delete(id string) error {
	ctx := context.Background()

	rec, err := s.Get(id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keyRecord(id))
	pipe.SRem(ctx, s.keyAll(), id)
	pipe.SRem(ctx, s.keyKind(rec.Kind), id)
	pipe.SRem(ctx, s.keyStatus(rec.Status), id)
	_, err = pipe.Exec(ctx)
	return err
}
