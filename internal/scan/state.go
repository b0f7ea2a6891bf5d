// Package scan runs the position evaluator across the book on the daily
// schedule and suppresses duplicate recommendations within a day.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// stateKeyPrefix namespaces the per-day dedup keys.
// Format: advisor:scanstate:{YYYY-MM-DD}:{positionID}
const stateKeyPrefix = "advisor:scanstate"

// stateTTL keeps keys alive past midnight for post-mortems; the date in
// the key is what actually scopes dedup to one day.
const stateTTL = 48 * time.Hour

// PositionState is the last-emitted fingerprint for one position on one
// day. ITMPercent at emission time feeds the deeper-ITM urgency check.
type PositionState struct {
	Hash       uint64    `json:"hash"`
	Action     string    `json:"action"`
	Priority   string    `json:"priority"`
	ITMPercent float64   `json:"itm_percent"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// StateStore holds the per-day emission state in Redis, falling back to an
// in-memory map when Redis is unavailable so scanning continues without
// interruption. The date lives in the key, so day rollover needs no
// explicit reset: yesterday's entries are simply never read again.
type StateStore struct {
	client  *redis.Client
	loc     *time.Location
	logger  zerolog.Logger
	clock   func() time.Time
	redisUp atomic.Bool

	mu     sync.RWMutex
	mem    map[string]PositionState
	memDay string
}

// NewStateStore creates a scan state store. A nil client means
// memory-only mode.
func NewStateStore(client *redis.Client, loc *time.Location, logger zerolog.Logger) *StateStore {
	s := &StateStore{
		client: client,
		loc:    loc,
		logger: logger.With().Str("component", "scanstate").Logger(),
		clock:  time.Now,
		mem:    make(map[string]PositionState),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis unavailable at startup, using in-memory scan state")
		} else {
			s.redisUp.Store(true)
		}
	}

	return s
}

// day is the current trading date in the store's location.
func (s *StateStore) day() string {
	return s.clock().In(s.loc).Format("2006-01-02")
}

func (s *StateStore) key(day, positionID string) string {
	return fmt.Sprintf("%s:%s:%s", stateKeyPrefix, day, positionID)
}

// Last returns the state last recorded for the position today, if any.
func (s *StateStore) Last(ctx context.Context, positionID string) (PositionState, bool) {
	day := s.day()

	if s.client != nil && s.redisUp.Load() {
		data, err := s.client.Get(ctx, s.key(day, positionID)).Result()
		switch {
		case err == redis.Nil:
			return PositionState{}, false
		case err != nil:
			s.logger.Warn().Err(err).Msg("redis read failed, falling back to in-memory scan state")
			s.redisUp.Store(false)
		default:
			var st PositionState
			if jsonErr := json.Unmarshal([]byte(data), &st); jsonErr != nil {
				s.logger.Warn().Err(jsonErr).Str("position", positionID).Msg("corrupt scan state entry, ignoring")
				return PositionState{}, false
			}
			return st, true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.memDay != day {
		return PositionState{}, false
	}
	st, ok := s.mem[positionID]
	return st, ok
}

// Record stores the emitted fingerprint for the position for the rest of
// the day. The in-memory copy is always written, so a Redis outage mid-day
// degrades to per-process dedup instead of re-notifying on every scan.
func (s *StateStore) Record(ctx context.Context, positionID string, st PositionState) {
	day := s.day()

	s.mu.Lock()
	if s.memDay != day {
		s.mem = make(map[string]PositionState)
		s.memDay = day
	}
	s.mem[positionID] = st
	s.mu.Unlock()

	if s.client == nil || !s.redisUp.Load() {
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Error().Err(err).Str("position", positionID).Msg("marshal scan state")
		return
	}
	if err := s.client.Set(ctx, s.key(day, positionID), data, stateTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis write failed, falling back to in-memory scan state")
		s.redisUp.Store(false)
	}
}
