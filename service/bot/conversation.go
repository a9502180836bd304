package bot

import (
	"sync"
	"time"
)

// State is where a user is in a multi-step command.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingAddress  State = "awaiting-address"
	StateAwaitingEndpoint State = "awaiting-endpoint"
	StateAwaitingTrack    State = "awaiting-track"
	StateAwaitingUntrack  State = "awaiting-untrack"
)

// ConversationTTL is how long an awaiting state survives without a reply.
const ConversationTTL = 5 * time.Minute

type conversation struct {
	state   State
	expires time.Time
}

// Conversations tracks the per-user state machine. Expired entries read as idle.
type Conversations struct {
	mu    sync.Mutex
	users map[string]conversation
	ttl   time.Duration
	now   func() time.Time
}

// NewConversations creates an empty state table.
func NewConversations(ttl time.Duration) *Conversations {
	if ttl <= 0 {
		ttl = ConversationTTL
	}
	return &Conversations{
		users: make(map[string]conversation),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the current state of a user.
func (c *Conversations) Get(userID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.users[userID]
	if !ok {
		return StateIdle
	}
	if c.now().After(conv.expires) {
		delete(c.users, userID)
		return StateIdle
	}
	return conv.state
}

// Set moves a user into state. Setting StateIdle forgets the user.
func (c *Conversations) Set(userID string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state == StateIdle {
		delete(c.users, userID)
		return
	}
	c.users[userID] = conversation{state: state, expires: c.now().Add(c.ttl)}
}

// Take returns the current state and resets the user to idle.
func (c *Conversations) Take(userID string) State {
	state := c.Get(userID)
	c.Set(userID, StateIdle)
	return state
}

// Prune drops expired entries and returns how many were removed.
func (c *Conversations) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, conv := range c.users {
		if now.After(conv.expires) {
			delete(c.users, id)
			removed++
		}
	}
	return removed
}
