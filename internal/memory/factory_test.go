package memory

import (
	"context"
	"io/fs"
	"strings"
	"testing"
)

func TestNewKVDefaultsToInMemory(t *testing.T) {
	kv, err := NewKV(context.Background(), "  ", "")
	if err != nil {
		t.Fatalf("NewKV() error = %v", err)
	}
	defer kv.Close()
	if got := Mode(kv); got != "in-memory" {
		t.Fatalf("Mode() = %q, want in-memory", got)
	}
}

func TestNewKVRejectsMalformedURLs(t *testing.T) {
	ctx := context.Background()
	if _, err := NewKV(ctx, "not-a-redis-url", ""); err == nil || !strings.Contains(err.Error(), "parse redis url") {
		t.Fatalf("NewKV(redis) error = %v, want parse error", err)
	}
	if _, err := NewKV(ctx, "", "postgres://%zz"); err == nil || !strings.Contains(err.Error(), "connect postgres") {
		t.Fatalf("NewKV(postgres) error = %v, want connect error", err)
	}
}

func TestModeNamesBackends(t *testing.T) {
	tests := []struct {
		kv   KV
		want string
	}{
		{kv: NewInMemoryKV(), want: "in-memory"},
		{kv: &RedisKV{}, want: "redis"},
		{kv: &PostgresKV{}, want: "postgres"},
		{kv: failingKV{}, want: "custom"},
	}
	for _, tt := range tests {
		if got := Mode(tt.kv); got != tt.want {
			t.Fatalf("Mode(%T) = %q, want %q", tt.kv, got, tt.want)
		}
	}
}

func TestInMemoryKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewInMemoryKV()
	if _, found, err := kv.Get(ctx, "chat_1"); found || err != nil {
		t.Fatalf("Get(missing) = found %v, err %v; want absent", found, err)
	}
	_ = kv.Put(ctx, "chat_1", "a")
	_ = kv.Put(ctx, "chat_1", "b")
	if v, found, _ := kv.Get(ctx, "chat_1"); !found || v != "b" {
		t.Fatalf("Get() = %q, %v; want last written value", v, found)
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/00001_conversation_history.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "conversation_history"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}
