package devotp

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "+447700900000", "123456", time.Now().Add(5*time.Minute))

	code, ok := store.Get(ctx, "+447700900000")
	if !ok || code != "123456" {
		t.Errorf("Get = %q, %v; want 123456, true", code, ok)
	}
}

func TestMemoryStore_EmailTargetsAreCaseInsensitive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "a@b.com", "111111", time.Now().Add(time.Minute))

	if code, ok := store.Get(ctx, " A@B.com "); !ok || code != "111111" {
		t.Errorf("Get = %q, %v; want 111111, true", code, ok)
	}
}

func TestMemoryStore_LatestCodeWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)
	store.Put(ctx, "+447700900000", "111111", exp)
	store.Put(ctx, "+447700900000", "222222", exp)

	if code, _ := store.Get(ctx, "+447700900000"); code != "222222" {
		t.Errorf("code = %q, want 222222", code)
	}
}

func TestMemoryStore_Missing(t *testing.T) {
	code, ok := NewMemoryStore().Get(context.Background(), "+447700900000")
	if ok || code != "" {
		t.Errorf("Get = %q, %v; want empty, false", code, ok)
	}
}

func TestMemoryStore_Expired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "+447700900000", "111111", time.Now().Add(time.Minute))
	store.Put(ctx, "+447700900000", "222222", time.Now().Add(-time.Minute))

	if _, ok := store.Get(ctx, "+447700900000"); ok {
		t.Error("an expired Put should remove the entry")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(5 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		target := "+44770090000" + strconv.Itoa(i)
		go func() {
			defer wg.Done()
			store.Put(ctx, target, "123456", exp)
		}()
		go func() {
			defer wg.Done()
			store.Get(ctx, target)
		}()
	}
	wg.Wait()
}
