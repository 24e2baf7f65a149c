package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xcomm"
)

// MessageStore keeps one JSON document per message.
type MessageStore struct {
	client redis.UniversalClient
	prefix string
}

func (s *MessageStore) key(id string) string { return s.prefix + keyMessage + id }
func (s *MessageStore) indexKey() string { return s.prefix + keyMessageIndex }

// listBatch bounds the number of GETs pipelined per round trip in List.
const listBatch = 256

func (s *MessageStore) Load(ctx context.Context, id string) (*xcomm.Message, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("message %s: %w", id, xcomm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	return decodeMessage(raw)
}

func (s *MessageStore) Insert(ctx context.Context, msg *xcomm.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: id is required", xcomm.ErrInvalidMessage)
	}
	doc := msg.Clone()
	doc.Version = 1
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(msg.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", msg.ID, err)
	}
	if !ok {
		return fmt.Errorf("message %s already exists: %w", msg.ID, xcomm.ErrConflict)
	}
	score := float64(msg.CreatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: msg.ID}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", msg.ID, err)
	}
	msg.Version = 1
	return nil
}

// List walks the creation index and filters the decoded documents. Ids whose
// document vanished between the index read and the GET are skipped.
func (s *MessageStore) List(ctx context.Context, f xcomm.MessageFilter) ([]*xcomm.Message, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	out := make([]*xcomm.Message, 0, len(ids))
	for start := 0; start < len(ids); start += listBatch {
		end := min(start+listBatch, len(ids))
		cmds := make([]*redis.StringCmd, 0, end-start)
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids[start:end] {
				cmds = append(cmds, pipe.Get(ctx, s.key(id)))
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis get batch: %w", err)
		}
		for _, cmd := range cmds {
			raw, err := cmd.Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("redis get: %w", err)
			}
			m, err := decodeMessage(raw)
			if err != nil {
				return nil, err
			}
			if f.Match(m) {
				out = append(out, m)
			}
		}
	}
	return f.Page(out), nil
}

// Delete removes the document and its index entry in one transaction.
func (s *MessageStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("message %s: %w", id, xcomm.ErrNotFound)
	}
	return nil
}

// Save writes msg under WATCH so a concurrent writer aborts the transaction.
func (s *MessageStore) Save(ctx context.Context, msg *xcomm.Message, expected xcomm.State) error {
	if msg == nil {
		return xcomm.ErrNilMessage
	}
	key := s.key(msg.ID)
	next := msg.Clone()
	next.Version = msg.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("message %s: %w", msg.ID, xcomm.ErrNotFound)
		}
		if err != nil {
			return err
		}
		cur, err := decodeMessage(raw)
		if err != nil {
			return err
		}
		if cur.State != expected || cur.Version != msg.Version {
			return fmt.Errorf("message %s is %s@%d, expected %s@%d: %w",
				msg.ID, cur.State, cur.Version, expected, msg.Version, xcomm.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("message %s changed concurrently: %w", msg.ID, xcomm.ErrConflict)
	}
	if err != nil {
		return err
	}
	msg.Version = next.Version
	return nil
}

func decodeMessage(raw []byte) (*xcomm.Message, error) {
	var m xcomm.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}
