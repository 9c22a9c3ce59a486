package repository

import (
	"context"
	"testing"
	"time"

	"accountability-assistant/backend/internal/otp/domain"
)

func newChallenge(target string, ttl time.Duration) *domain.Challenge {
	now := time.Now()
	return &domain.Challenge{
		Purpose:   "sms",
		Target:    target,
		Channel:   domain.ChannelSMS,
		CodeHash:  "hash",
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func TestMemoryRepository_PutGet(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	c := newChallenge("+447700900000", time.Minute)
	if err := r.Put(ctx, c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Get(ctx, c.Key())
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.CodeHash != "hash" || got.Target != "+447700900000" {
		t.Errorf("challenge = %+v", got)
	}

	got.CodeHash = "mutated"
	again, _ := r.Get(ctx, c.Key())
	if again.CodeHash != "hash" {
		t.Error("Get should return a copy")
	}
}

func TestMemoryRepository_GetMissing(t *testing.T) {
	got, err := NewMemoryRepository().Get(context.Background(), "sms:+1")
	if err != nil || got != nil {
		t.Errorf("Get = %v, %v; want nil, nil", got, err)
	}
}

func TestMemoryRepository_ExpiredIsAbsent(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	c := newChallenge("+447700900000", time.Minute)
	r.Put(ctx, c)

	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if got, _ := r.Get(ctx, c.Key()); got != nil {
		t.Errorf("Get = %+v, want nil once expired", got)
	}
}

func TestMemoryRepository_PutAlreadyExpired(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	c := newChallenge("+447700900000", -time.Second)
	r.Put(ctx, c)
	if got, _ := r.Get(ctx, c.Key()); got != nil {
		t.Errorf("Get = %+v, want nil", got)
	}
}

func TestMemoryRepository_IncrementAttempts(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	c := newChallenge("+447700900000", time.Minute)
	r.Put(ctx, c)

	for want := 1; want <= 3; want++ {
		n, err := r.IncrementAttempts(ctx, c.Key())
		if err != nil {
			t.Fatalf("IncrementAttempts: %v", err)
		}
		if n != want {
			t.Errorf("attempts = %d, want %d", n, want)
		}
	}
	got, _ := r.Get(ctx, c.Key())
	if got.Attempts != 3 {
		t.Errorf("stored attempts = %d, want 3", got.Attempts)
	}
	if n, _ := r.IncrementAttempts(ctx, "sms:missing"); n != 0 {
		t.Errorf("attempts for missing = %d, want 0", n)
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	c := newChallenge("+447700900000", time.Minute)
	r.Put(ctx, c)
	r.Delete(ctx, c.Key())
	if got, _ := r.Get(ctx, c.Key()); got != nil {
		t.Errorf("Get = %+v, want nil after Delete", got)
	}
}
