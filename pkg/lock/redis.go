package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "subsync:lock:"
	opsKeyPrefix  = "subsync:lockops:"
)

// redisManager is the production Manager. The subject lock itself is a
// redislock entry (atomic SET NX acquire, scripted token-checked release);
// the recent-operations registry is a sorted set per subject scored by start
// time, which FindConflicting prunes and scans.
type redisManager struct {
	cfg      Config
	client   redis.UniversalClient
	locker   *redislock.Client
	holderID string

	// held maps token id to the redislock handle needed for release. Locks
	// are always released by the process that acquired them.
	held sync.Map
}

// NewRedisManager returns a Manager backed by the given redis client.
func NewRedisManager(client redis.UniversalClient, cfg Config) Manager {
	host, _ := os.Hostname()
	return &redisManager{
		cfg:      cfg,
		client:   client,
		locker:   redislock.New(client),
		holderID: host + "-" + uuid.NewString(),
	}
}

func (m *redisManager) Acquire(ctx context.Context, subjectID, tag string, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	now := time.Now().UTC()
	tokenID := uuid.NewString()

	rl, err := m.locker.Obtain(ctx, lockKeyPrefix+subjectID, ttl, &redislock.Options{
		Token:    tokenID,
		Metadata: tag,
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrNotAcquired
		}
		return nil, errors.Join(ErrUnavailable, err)
	}

	token := &Token{
		ID:         tokenID,
		SubjectID:  subjectID,
		Tag:        tag,
		HolderID:   m.holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.held.Store(tokenID, rl)

	window := m.conflictWindow(0)
	opsKey := opsKeyPrefix + subjectID
	if err := m.client.ZAdd(ctx, opsKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: opMember(token),
	}).Err(); err != nil {
		// The registry is advisory; a failed write must not fail the acquire.
		return token, nil
	}
	_ = m.client.Expire(ctx, opsKey, 2*window).Err()

	return token, nil
}

func (m *redisManager) Release(ctx context.Context, token *Token) error {
	if token == nil {
		return nil
	}

	// Drop the registry entry first so the operation stops counting as
	// in-flight even when the lock itself has already expired.
	_ = m.client.ZRem(ctx, opsKeyPrefix+token.SubjectID, opMember(token)).Err()

	v, ok := m.held.LoadAndDelete(token.ID)
	if !ok {
		return nil
	}
	rl := v.(*redislock.Lock)

	if err := rl.Release(ctx); err != nil {
		// Expired and possibly re-acquired by someone else; a stale token
		// releases nothing.
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (m *redisManager) FindConflicting(ctx context.Context, subjectID, currentTag string, window time.Duration) ([]Descriptor, error) {
	window = m.conflictWindow(window)

	opsKey := opsKeyPrefix + subjectID
	now := time.Now().UTC()
	cutoff := now.Add(-window)

	// Prune entries older than the window; holders that crashed without
	// releasing disappear here instead of lingering forever.
	if err := m.client.ZRemRangeByScore(ctx, opsKey, "-inf", strconv.FormatInt(cutoff.UnixNano(), 10)).Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	members, err := m.client.ZRangeByScore(ctx, opsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	var conflicts []Descriptor
	for _, member := range members {
		d, ok := parseOpMember(member)
		if !ok || d.Tag == currentTag {
			continue
		}
		d.SubjectID = subjectID
		conflicts = append(conflicts, d)
	}
	return conflicts, nil
}

func (m *redisManager) conflictWindow(window time.Duration) time.Duration {
	if window <= 0 {
		window = m.cfg.ConflictWindow
	}
	if window <= 0 {
		window = time.Minute
	}
	return window
}

// opMember encodes a registry entry. Tags are event type names and never
// contain the separator.
func opMember(t *Token) string {
	return fmt.Sprintf("%s|%s|%s|%d", t.ID, t.HolderID, t.Tag, t.AcquiredAt.UnixNano())
}

func parseOpMember(member string) (Descriptor, bool) {
	parts := strings.SplitN(member, "|", 4)
	if len(parts) != 4 {
		return Descriptor{}, false
	}
	nanos, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Descriptor{}, false
	}
	return Descriptor{
		HolderID:  parts[1],
		Tag:       parts[2],
		StartedAt: time.Unix(0, nanos).UTC(),
	}, true
}
