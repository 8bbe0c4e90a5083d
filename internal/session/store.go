package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for client session hashes.
	SessionPrefix = "mpchat:session:"

	// SessionTTL is the time-to-live for session keys in Redis. Every write
	// refreshes it.
	SessionTTL = 1 * time.Hour
)

// Record is the client session as stored in Redis.
type Record struct {
	UserID      string `redis:"user_id"`
	Client      string `redis:"client"`       // which client instance
	State       string `redis:"state"`        // disconnected | connecting | authenticating | authenticated
	ChatID      string `redis:"chat_id"`      // empty if no active chat
	PeerID      string `redis:"peer_id"`      // counterpart of the active chat
	CallID      string `redis:"call_id"`      // empty if no call
	CallPhase   string `redis:"call_phase"`   // idle | outgoing | incoming | connected
	Unread      int    `redis:"unread"`       // title badge
	ConnectedAt int64  `redis:"connected_at"` // unix timestamp, 0 when never authenticated
	LastActive  int64  `redis:"last_active"`  // unix timestamp
}

// Store manages client session records in Redis.
type Store struct {
	client     *redis.Client
	clientName string
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, clientName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "session: redis connection failed")
	}

	return NewStoreWithClient(client, clientName), nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client, clientName string) *Store {
	return &Store{client: client, clientName: clientName}
}

// Save writes the whole record and refreshes the TTL.
func (s *Store) Save(ctx context.Context, rec Record) error {
	key := SessionPrefix + rec.UserID
	rec.Client = s.clientName
	if rec.LastActive == 0 {
		rec.LastActive = time.Now().Unix()
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":      rec.UserID,
		"client":       rec.Client,
		"state":        rec.State,
		"chat_id":      rec.ChatID,
		"peer_id":      rec.PeerID,
		"call_id":      rec.CallID,
		"call_phase":   rec.CallPhase,
		"unread":       rec.Unread,
		"connected_at": rec.ConnectedAt,
		"last_active":  rec.LastActive,
	})
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "session: save %s", rec.UserID)
}

// Get retrieves a record from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	key := SessionPrefix + userID
	var rec Record
	err := s.client.HGetAll(ctx, key).Scan(&rec)
	if err != nil {
		return nil, errors.Wrapf(err, "session: get %s", userID)
	}
	if rec.UserID == "" {
		return nil, nil // not found
	}
	return &rec, nil
}

// Delete removes a record from Redis.
func (s *Store) Delete(ctx context.Context, userID string) error {
	key := SessionPrefix + userID
	return errors.Wrapf(s.client.Del(ctx, key).Err(), "session: delete %s", userID)
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
