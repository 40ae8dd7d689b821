package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
)

// MaxHistory caps the turns kept per conversation.
const MaxHistory = 50

// HistoryStore keeps a bounded, append-only history per chat on top of a KV.
//
// Append is a plain read-modify-write: two turns for the same chat racing
// through it can lose one of the updates. Callers accept last-writer-wins.
type HistoryStore struct {
	kv    KV
	limit int
}

func NewHistoryStore(kv KV) *HistoryStore {
	return &HistoryStore{kv: kv, limit: MaxHistory}
}

// HistoryKey returns the record key for a chat.
func HistoryKey(chatID int64) string {
	return "chat_" + strconv.FormatInt(chatID, 10)
}

// Get returns the stored history. A missing or unparsable record yields an
// empty history; only store failures are returned as errors, and callers must
// treat such an error as an empty history rather than fail the turn.
func (s *HistoryStore) Get(ctx context.Context, chatID int64) ([]Turn, error) {
	key := HistoryKey(chatID)
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !found || raw == "" {
		return []Turn{}, nil
	}
	var turns []Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		log.Printf("history %s: discarding unparsable record: %v", key, err)
		return []Turn{}, nil
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// Append adds turns after the existing history, keeps the most recent entries
// and writes the full replacement back.
func (s *HistoryStore) Append(ctx context.Context, chatID int64, turns ...Turn) error {
	current, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	updated := Truncate(append(current, turns...), s.limit)
	payload, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.kv.Put(ctx, HistoryKey(chatID), string(payload)); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

// Truncate returns the last limit turns, preserving their order.
func Truncate(turns []Turn, limit int) []Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	out := make([]Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}
