package admission

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionKey identifies one concrete class meeting: a class on a calendar date.
type SessionKey struct {
	ClassID string
	Date    string // YYYY-MM-DD, local wall clock
}

// NewSessionKey builds the key for a class at a point in time.
func NewSessionKey(classID string, at time.Time) SessionKey {
	return SessionKey{ClassID: classID, Date: at.Format("2006-01-02")}
}

func (k SessionKey) String() string { return k.ClassID + ":" + k.Date }

// Tracker remembers which subjects were already admitted within a session.
// Implementations must treat Mark as idempotent.
type Tracker interface {
	// Seen returns the time the subject was first admitted in the session,
	// if it was.
	Seen(ctx context.Context, key SessionKey, subjectID string) (time.Time, bool, error)
	Mark(ctx context.Context, key SessionKey, subjectID string, at time.Time) error
}

// MemoryTracker is the single-device tracker. Session keys encode the date,
// so stale sessions are never looked up again; writes evict anything older
// than two days to bound growth.
type MemoryTracker struct {
	mu       sync.Mutex
	sessions map[SessionKey]map[string]time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{sessions: make(map[SessionKey]map[string]time.Time)}
}

// Seen reports a prior admission within the session.
func (t *MemoryTracker) Seen(_ context.Context, key SessionKey, subjectID string) (time.Time, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.sessions[key][subjectID]
	return at, ok, nil
}

// Mark records an admission within the session.
func (t *MemoryTracker) Mark(_ context.Context, key SessionKey, subjectID string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.sessions[key]
	if !ok {
		set = make(map[string]time.Time)
		t.sessions[key] = set
		t.evictLocked(at)
	}
	if _, dup := set[subjectID]; !dup {
		set[subjectID] = at
	}
	return nil
}

func (t *MemoryTracker) evictLocked(now time.Time) {
	cutoff := now.AddDate(0, 0, -2).Format("2006-01-02")
	for key := range t.sessions {
		if key.Date < cutoff {
			delete(t.sessions, key)
		}
	}
}

// RedisTracker shares the session set across scanner devices. Each session
// is a hash of subject id to admit time with a 48h TTL.
type RedisTracker struct {
	client *redis.Client
}

// NewRedisTracker wraps a Redis client.
func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client}
}

func (t *RedisTracker) redisKey(key SessionKey) string {
	return "attendance:session:" + key.String()
}

// Seen reports a prior admission within the session.
func (t *RedisTracker) Seen(ctx context.Context, key SessionKey, subjectID string) (time.Time, bool, error) {
	val, err := t.client.HGet(ctx, t.redisKey(key), subjectID).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, true, nil
	}
	return at, true, nil
}

// Mark records an admission within the session.
func (t *RedisTracker) Mark(ctx context.Context, key SessionKey, subjectID string, at time.Time) error {
	rkey := t.redisKey(key)
	pipe := t.client.TxPipeline()
	pipe.HSetNX(ctx, rkey, subjectID, at.Format(time.RFC3339))
	pipe.Expire(ctx, rkey, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
