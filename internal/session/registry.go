package session

import (
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

const shardCount = 16

// Session is the per-user conversational state. Created on first message,
// evicted after the inactivity timeout. Activity fields (LastActivityAt,
// TurnCount) are serialized by the Registry's shard locks; conversation
// fields carry their own lock because concurrent webhook deliveries for
// one user may mutate them outside the registry.
type Session struct {
	UserID         string
	CreatedAt      time.Time
	LastActivityAt time.Time
	TurnCount      int

	mu sync.Mutex

	// lastMatchedFAQ is the id of the last FAQ entry delivered to this
	// user, 0 when none.
	lastMatchedFAQ int

	// greeted marks that the welcome message was already sent.
	greeted bool

	limiter *rate.Limiter
}

// Allow reports whether the user is within the inbound rate limit.
func (s *Session) Allow() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// RecordMatch stores the id of the FAQ entry just delivered to the user.
func (s *Session) RecordMatch(faqID int) {
	s.mu.Lock()
	s.lastMatchedFAQ = faqID
	s.mu.Unlock()
}

// LastMatched returns the id of the last delivered FAQ entry, 0 when none.
func (s *Session) LastMatched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMatchedFAQ
}

// MarkGreeted flips the greeted flag and reports whether this call was
// the one that flipped it. Concurrent callers see exactly one true.
func (s *Session) MarkGreeted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.greeted {
		return false
	}
	s.greeted = true
	return true
}

// Greeted reports whether the welcome message was already sent.
func (s *Session) Greeted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greeted
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Registry tracks sessions keyed by user id. State is sharded so
// concurrent webhooks for unrelated users never contend on one lock.
type Registry struct {
	shards    [shardCount]*shard
	timeout   time.Duration
	userLimit int // messages per user per hour, 0 disables

	nowFunc func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry creates a registry with the given inactivity timeout and
// per-user hourly message limit.
func NewRegistry(timeout time.Duration, userLimit int) *Registry {
	r := &Registry{
		timeout:   timeout,
		userLimit: userLimit,
		nowFunc:   time.Now,
		stop:      make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Touch returns the live session for userID, creating one if absent. A
// session past the inactivity timeout counts as absent: the caller gets a
// fresh session with no carried-over state.
func (r *Registry) Touch(userID string) *Session {
	now := r.nowFunc()
	sh := r.shardFor(userID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if ok && now.Sub(s.LastActivityAt) <= r.timeout {
		if now.After(s.LastActivityAt) {
			s.LastActivityAt = now
		}
		s.TurnCount++
		return s
	}

	s = &Session{
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		TurnCount:      1,
	}
	if r.userLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(r.userLimit)), r.userLimit)
	}
	sh.sessions[userID] = s
	return s
}

// Get returns the live session for userID without creating or touching
// one. Expired sessions are reported as absent.
func (r *Registry) Get(userID string) (*Session, bool) {
	now := r.nowFunc()
	sh := r.shardFor(userID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok || now.Sub(s.LastActivityAt) > r.timeout {
		return nil, false
	}
	return s, true
}

// Sweep evicts every session whose last activity is older than the
// timeout relative to now. Returns the number of evicted sessions.
func (r *Registry) Sweep(now time.Time) int {
	evicted := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for userID, s := range sh.sessions {
			if now.Sub(s.LastActivityAt) > r.timeout {
				delete(sh.sessions, userID)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

// StartSweeper runs periodic eviction in the background until Stop is
// called. Lazy expiry on Touch keeps correctness either way; the sweeper
// just bounds memory.
func (r *Registry) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(r.nowFunc()); n > 0 {
					utils.Zlog.Debug("Evicted expired sessions", zap.Int("count", n))
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Len returns the number of tracked sessions, including any not yet swept.
func (r *Registry) Len() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		total += len(sh.sessions)
		sh.mu.Unlock()
	}
	return total
}

// Stats summarizes session state for the health endpoints.
func (r *Registry) Stats() map[string]interface{} {
	totalSessions := 0
	totalTurns := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		totalSessions += len(sh.sessions)
		for _, s := range sh.sessions {
			totalTurns += s.TurnCount
		}
		sh.mu.Unlock()
	}
	return map[string]interface{}{
		"active_sessions": totalSessions,
		"total_turns":     totalTurns,
	}
}
