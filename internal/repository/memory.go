package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ambubot/internal/domain"
)

const (
	defaultMemoryCapacity = 10000
	defaultMemoryTTL      = 30 * time.Minute
)

// MemoryStore keeps conversations in an expiring LRU. Idle conversations are
// dropped after the TTL; the oldest are evicted once capacity is reached.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, domain.Conversation]
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore. Non-positive arguments fall back to
// 10000 entries and a 30 minute TTL.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, domain.Conversation](capacity, nil, ttl),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (domain.Conversation, bool, error) {
	conv, ok := m.cache.Get(userID)
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return cloneConversation(conv), true, nil
}

func (m *MemoryStore) Save(_ context.Context, conv domain.Conversation) (domain.Conversation, error) {
	if strings.TrimSpace(conv.UserID) == "" {
		return domain.Conversation{}, errors.New("repository: Save: user id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.cache.Peek(conv.UserID)
	switch {
	case !ok && conv.Version != 0:
		return domain.Conversation{}, ErrConflict
	case ok && stored.Version != conv.Version:
		return domain.Conversation{}, ErrConflict
	}

	next := cloneConversation(conv)
	next.Version = conv.Version + 1
	next.UpdatedAt = m.now().UTC()
	m.cache.Add(next.UserID, next)
	return cloneConversation(next), nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(userID)
	return nil
}

// cloneConversation copies the slices so callers can't mutate cached state.
func cloneConversation(c domain.Conversation) domain.Conversation {
	c.FollowUps = append([]string(nil), c.FollowUps...)
	c.Answers = append([]string(nil), c.Answers...)
	return c
}
