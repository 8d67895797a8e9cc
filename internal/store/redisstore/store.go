// Package redisstore keeps sessions and thoughts in Redis, one JSON value
// per record plus an ordered id list per session.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/mind-weather/internal/common"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

const maxTxRetries = 5

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "mindweather"
	}
	return &Store{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Store) sessionKey(id string) string  { return s.prefix + ":session:" + id }
func (s *Store) thoughtKey(id string) string  { return s.prefix + ":thought:" + id }
func (s *Store) thoughtList(id string) string { return s.prefix + ":session:" + id + ":thoughts" }

func (s *Store) CreateSession(ctx context.Context, weather reflection.MindWeather, startedAt time.Time) (*reflection.Session, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	sess := &reflection.Session{ID: id, MindWeather: weather, StartedAt: startedAt}
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.SetNX(ctx, s.sessionKey(id), b, 0).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*reflection.Session, error) {
	var sess reflection.Session
	if err := s.get(ctx, s.rdb, s.sessionKey(id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch reflection.SessionPatch) (*reflection.Session, error) {
	return update(ctx, s, s.sessionKey(id), func(sess *reflection.Session) { patch.Apply(sess) })
}

func (s *Store) CreateThoughts(ctx context.Context, sessionID string, texts []string) ([]reflection.Thought, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	texts = reflection.NormalizeTexts(texts)
	out := make([]reflection.Thought, 0, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	createdAt := s.now().UTC()
	ids := make([]any, 0, len(texts))
	values := make([][]byte, 0, len(texts))
	for _, text := range texts {
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		t := reflection.Thought{ID: id, SessionID: sessionID, ThoughtText: text, CreatedAt: createdAt}
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		ids = append(ids, id)
		values = append(values, b)
	}

	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, t := range out {
			p.Set(ctx, s.thoughtKey(t.ID), values[i], 0)
		}
		p.RPush(ctx, s.thoughtList(sessionID), ids...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetThoughtsBySession(ctx context.Context, sessionID string) ([]reflection.Thought, error) {
	ids, err := s.rdb.LRange(ctx, s.thoughtList(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]reflection.Thought, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.thoughtKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var t reflection.Thought
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) UpdateThought(ctx context.Context, id string, patch reflection.ThoughtPatch) (*reflection.Thought, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return update(ctx, s, s.thoughtKey(id), func(t *reflection.Thought) { patch.Apply(t) })
}

// ClearAll deletes every session and thought key under the prefix. Cached
// narration audio is left alone.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, pattern := range []string{s.prefix + ":session:*", s.prefix + ":thought:*"} {
		iter := s.rdb.Scan(ctx, 0, pattern, 500).Iterator()
		batch := make([]string, 0, 500)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) get(ctx context.Context, c getter, key string, dst any) error {
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return reflection.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// update runs a read-modify-write of one record under WATCH. The key must
// already exist.
func update[T any](ctx context.Context, s *Store, key string, apply func(*T)) (*T, error) {
	var out *T
	txf := func(tx *redis.Tx) error {
		v := new(T)
		if err := s.get(ctx, tx, key, v); err != nil {
			return err
		}
		apply(v)
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, 0)
			return nil
		})
		if err == nil {
			out = v
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return nil, fmt.Errorf("redisstore: %s: too much contention", key)
}
