package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisRepositoryFromClient(client, "test:", 0)

	t.Cleanup(func() {
		_ = repo.Close()
	})

	return repo, mr
}

func TestRedisRepositoryLoadEmpty(t *testing.T) {
	repo, _ := setupMiniredis(t)

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Sessions) != 0 {
		t.Errorf("Sessions = %d, want 0", len(snap.Sessions))
	}
	if snap.CurrentID != "" {
		t.Errorf("CurrentID = %q, want empty", snap.CurrentID)
	}
}

func TestRedisRepositoryRoundTrip(t *testing.T) {
	repo, _ := setupMiniredis(t)
	ctx := context.Background()

	sess := newSession()
	sess.Messages = append(sess.Messages, NewMessage(RoleUser, "hello"))
	sess.Tags = []string{"focus"}

	if err := repo.Save(ctx, &Snapshot{Sessions: []*Session{sess}, CurrentID: sess.ID}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Sessions) != 1 {
		t.Fatalf("Sessions = %d, want 1", len(loaded.Sessions))
	}
	got := loaded.Sessions[0]
	if got.ID != sess.ID {
		t.Errorf("ID = %q, want %q", got.ID, sess.ID)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "focus" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if loaded.CurrentID != sess.ID {
		t.Errorf("CurrentID = %q, want %q", loaded.CurrentID, sess.ID)
	}
}

func TestRedisRepositoryKeyPrefix(t *testing.T) {
	repo, mr := setupMiniredis(t)

	sess := newSession()
	if err := repo.Save(context.Background(), &Snapshot{Sessions: []*Session{sess}, CurrentID: sess.ID}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, key := range []string{"test:sessions", "test:current"} {
		if !mr.Exists(key) {
			t.Errorf("expected key %q", key)
		}
	}
}

func TestRedisRepositoryTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisRepositoryFromClient(client, "test:", time.Hour)
	t.Cleanup(func() { _ = repo.Close() })

	sess := newSession()
	if err := repo.Save(context.Background(), &Snapshot{Sessions: []*Session{sess}, CurrentID: sess.ID}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if ttl := mr.TTL("test:sessions"); ttl != time.Hour {
		t.Errorf("TTL = %v, want %v", ttl, time.Hour)
	}
}

func TestRedisRepositoryClosed(t *testing.T) {
	repo, _ := setupMiniredis(t)
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := repo.Load(context.Background()); err != ErrRepositoryClosed {
		t.Errorf("Load() after close = %v, want ErrRepositoryClosed", err)
	}
	if err := repo.Save(context.Background(), &Snapshot{}); err != ErrRepositoryClosed {
		t.Errorf("Save() after close = %v, want ErrRepositoryClosed", err)
	}
}
