package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "switchyard:"

// noExpiryScore is the index score of entities stored without a TTL
// (2100-01-01).
const noExpiryScore = 4102444800

// Repository implements ports.Repository on Redis. Entities are JSON
// strings; a sorted set indexes ids by expiry so List can prune entries
// whose keys Redis already expired.
type Repository[T any] struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets the expiration of stored entities. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// NewClient opens a client for addr.
func NewClient(addr, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRepository creates a Repository on an existing client. collection
// separates entity kinds sharing one prefix (e.g. "runs").
func NewRepository[T any](client *backend.Client, collection string, opts ...Option) *Repository[T] {
	o := options{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T]{
		client: client,
		prefix: o.prefix + collection + ":",
		ttl:    o.ttl,
	}
}

func (r *Repository[T]) key(id string) string {
	return r.prefix + id
}

func (r *Repository[T]) indexKey() string {
	return r.prefix + "index"
}

// Save stores entity with the configured TTL and indexes its id.
func (r *Repository[T]) Save(ctx context.Context, id string, entity T) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	score := float64(noExpiryScore)
	if r.ttl > 0 {
		score = float64(time.Now().Add(r.ttl).Unix())
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(id), data, r.ttl)
	pipe.ZAdd(ctx, r.indexKey(), backend.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Get returns the entity, or nil when the key is absent or expired.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var out T
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}
	return &out, nil
}

// List prunes expired index entries and returns every live entity.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	now := float64(time.Now().Unix())
	if err := r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired entries: %w", err)
	}

	ids, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list index: %w", err)
	}
	if len(ids) == 0 {
		return []T{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	out := make([]T, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Expired between the index read and MGET.
			continue
		}
		var entity T
		if err := json.Unmarshal([]byte(s), &entity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", ids[i], err)
		}
		out = append(out, entity)
	}
	return out, nil
}

// Delete removes the entity and its index entry.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.key(id))
	pipe.ZRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete from redis: %w", err)
	}
	return del.Val() > 0, nil
}

// GenerateID returns a random UUID.
func (r *Repository[T]) GenerateID() string {
	return uuid.NewString()
}

// Close closes the underlying client.
func (r *Repository[T]) Close() error {
	return r.client.Close()
}
