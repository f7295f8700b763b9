package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers reservations by order id.
type Store interface {
	// Load returns the stored reservation or nil when the order was never reserved.
	Load(ctx context.Context, orderID string) (*Result, error)
	// Save stores res unless the order already has a reservation, and returns whichever
	// reservation is stored afterwards.
	Save(ctx context.Context, res *Result) (*Result, error)
}

// MemoryStore is a process-local Store. Reservations are lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Result
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Result)}
}

func (s *MemoryStore) Load(ctx context.Context, orderID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[orderID], nil
}

func (s *MemoryStore) Save(ctx context.Context, res *Result) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.byID[res.OrderID]; ok {
		return prior, nil
	}
	s.byID[res.OrderID] = res
	return res, nil
}

// RedisStore keeps reservations in Redis with an expiry so redeliveries across restarts
// and across instances of the group see the same reservation.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A non-positive ttl keeps reservations forever.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "inventory:reservation:",
		ttl:    ttl,
	}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(orderID string) string {
	return s.prefix + orderID
}

func (s *RedisStore) Load(ctx context.Context, orderID string) (*Result, error) {
	data, err := s.client.Get(ctx, s.key(orderID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", orderID, err)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode reservation %s: %w", orderID, err)
	}
	return &res, nil
}

func (s *RedisStore) Save(ctx context.Context, res *Result) (*Result, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode reservation %s: %w", res.OrderID, err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	created, err := s.client.SetNX(ctx, s.key(res.OrderID), data, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("save reservation %s: %w", res.OrderID, err)
	}
	if created {
		return res, nil
	}

	prior, err := s.Load(ctx, res.OrderID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		// Expired between SetNX and Get.
		return res, nil
	}
	return prior, nil
}
