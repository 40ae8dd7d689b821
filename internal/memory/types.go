package memory

import "context"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn stores a single user or bot conversational message.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// KV is the durable key-value store conversation history is persisted in.
type KV interface {
	// Get returns found=false with a nil error when key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string) error
	Close() error
}
