package question

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore reads questions from redis. Layout:
//
//	quiz:categories                      — hash: category id -> category JSON
//	quiz:question:{id}                   — question JSON
//	quiz:category:{id}:{kind}            — set of question ids
//	quiz:kind:{kind}                     — set of question ids (category-free lookup)
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

func categoryKindKey(categoryID string, kind Kind) string {
	return fmt.Sprintf("quiz:category:%s:%s", categoryID, kind)
}

func kindKey(kind Kind) string {
	return fmt.Sprintf("quiz:kind:%s", kind)
}

func questionKey(id string) string {
	return fmt.Sprintf("quiz:question:%s", id)
}

func (rs *RedisStore) Categories(ctx context.Context) ([]Category, error) {
	raw, err := rs.rdb.HGetAll(ctx, "quiz:categories").Result()
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	out := make([]Category, 0, len(raw))
	for id, blob := range raw {
		var c Category
		if err := json.Unmarshal([]byte(blob), &c); err != nil {
			return nil, fmt.Errorf("decode category %s: %w", id, err)
		}
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (rs *RedisStore) Random(ctx context.Context, categoryID string, kind Kind, n int, exclude map[string]bool) ([]Question, error) {
	key := kindKey(kind)
	if categoryID != "" {
		key = categoryKindKey(categoryID, kind)
	}

	ids, err := rs.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load question ids: %w", err)
	}

	candidates := make([]string, 0, len(ids))
	for _, id := range ids {
		if !exclude[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrExhausted
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n > len(candidates) {
		n = len(candidates)
	}

	keys := make([]string, n)
	for i, id := range candidates[:n] {
		keys[i] = questionKey(id)
	}
	blobs, err := rs.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	out := make([]Question, 0, n)
	for i, blob := range blobs {
		s, ok := blob.(string)
		if !ok {
			continue // id in the set but payload missing
		}
		var q Question
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", candidates[i], err)
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrExhausted
	}
	return out, nil
}

func (rs *RedisStore) ByID(ctx context.Context, id string) (*Question, error) {
	blob, err := rs.rdb.Get(ctx, questionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question %s: %w", id, err)
	}

	var q Question
	if err := json.Unmarshal([]byte(blob), &q); err != nil {
		return nil, fmt.Errorf("decode question %s: %w", id, err)
	}
	return &q, nil
}
