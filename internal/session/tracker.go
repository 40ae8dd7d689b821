// Package session tracks in-flight turns per chat so overlapping turns for
// the same conversation can be observed.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("chat session not found")

// Chat is a snapshot of one conversation's turn activity.
type Chat struct {
	ChatID         int64     `json:"chat_id"`
	ActiveTurnIDs  []string  `json:"active_turn_ids"`
	TurnCount      int       `json:"turn_count"`
	OverlapCount   int       `json:"overlap_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type chatState struct {
	active         map[string]struct{}
	turnCount      int
	overlapCount   int
	startedAt      time.Time
	lastActivityAt time.Time
}

// Tracker does not serialize turns. History writes for one chat stay
// last-writer-wins; Begin only reports that another turn is still running.
type Tracker struct {
	mu          sync.Mutex
	chats       map[int64]*chatState
	idleTimeout time.Duration
	onExpire    func(Chat)
}

func NewTracker(idleTimeout time.Duration) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Tracker{
		chats:       make(map[int64]*chatState),
		idleTimeout: idleTimeout,
	}
}

func (t *Tracker) SetExpireHook(hook func(Chat)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = hook
}

// Begin registers a new turn and reports whether another turn for the same
// chat was still in flight.
func (t *Tracker) Begin(chatID int64) (turnID string, overlapping bool) {
	turnID = uuid.NewString()
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chats[chatID]
	if !ok {
		c = &chatState{active: make(map[string]struct{}), startedAt: now}
		t.chats[chatID] = c
	}
	overlapping = len(c.active) > 0
	if overlapping {
		c.overlapCount++
	}
	c.active[turnID] = struct{}{}
	c.turnCount++
	c.lastActivityAt = now
	return turnID, overlapping
}

func (t *Tracker) End(chatID int64, turnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chats[chatID]
	if !ok {
		return
	}
	delete(c.active, turnID)
	c.lastActivityAt = time.Now().UTC()
}

func (t *Tracker) Get(chatID int64) (Chat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chats[chatID]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return snapshot(chatID, c), nil
}

// ActiveTurns counts in-flight turns across all chats.
func (t *Tracker) ActiveTurns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.chats {
		n += len(c.active)
	}
	return n
}

func (t *Tracker) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.expireIdle()
			}
		}
	}()
}

func (t *Tracker) expireIdle() {
	now := time.Now().UTC()
	var expired []Chat

	t.mu.Lock()
	for id, c := range t.chats {
		if len(c.active) > 0 || now.Sub(c.lastActivityAt) < t.idleTimeout {
			continue
		}
		expired = append(expired, snapshot(id, c))
		delete(t.chats, id)
	}
	hook := t.onExpire
	t.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

func snapshot(chatID int64, c *chatState) Chat {
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return Chat{
		ChatID:         chatID,
		ActiveTurnIDs:  ids,
		TurnCount:      c.turnCount,
		OverlapCount:   c.overlapCount,
		StartedAt:      c.startedAt,
		LastActivityAt: c.lastActivityAt,
	}
}
