package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rework/video-access/services/playback/internal/repository"
)

func setupGuestRepo(t *testing.T, limit int) (repository.GuestRepository, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return repository.NewGuestRepository(rdb, limit, 30*24*time.Hour), mr
}

func TestGuestRecordView_CountsDistinctContent(t *testing.T) {
	repo, _ := setupGuestRepo(t, 20)
	ctx := context.Background()

	quota, err := repo.RecordView(ctx, "device-1", "video-a")
	if err != nil {
		t.Fatalf("RecordView failed: %v", err)
	}
	if quota.Count != 1 || quota.Remaining != 19 || quota.LimitReached {
		t.Fatalf("Unexpected quota after first view: %+v", quota)
	}

	quota, err = repo.RecordView(ctx, "device-1", "video-b")
	if err != nil {
		t.Fatalf("RecordView failed: %v", err)
	}
	if quota.Count != 2 {
		t.Fatalf("Expected count 2, got %d", quota.Count)
	}
	if quota.FirstViewAt == nil || quota.LastViewAt == nil {
		t.Fatal("Expected view timestamps to be set")
	}
}

func TestGuestRecordView_RepeatContentDoesNotCount(t *testing.T) {
	repo, _ := setupGuestRepo(t, 20)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := repo.RecordView(ctx, "device-1", "video-a"); err != nil {
			t.Fatalf("RecordView failed: %v", err)
		}
	}

	quota, err := repo.Status(ctx, "device-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if quota.Count != 1 {
		t.Fatalf("Rewatching the same content must not count, got %d", quota.Count)
	}
}

func TestGuestRecordView_LimitFlipsAtDistinctCap(t *testing.T) {
	repo, _ := setupGuestRepo(t, 20)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		quota, err := repo.RecordView(ctx, "device-1", fmt.Sprintf("video-%d", i))
		if err != nil {
			t.Fatalf("RecordView %d failed: %v", i, err)
		}
		if i < 19 && quota.LimitReached {
			t.Fatalf("Limit flipped early at view %d", i+1)
		}
	}

	quota, err := repo.Status(ctx, "device-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !quota.LimitReached || quota.Remaining != 0 {
		t.Fatalf("Expected limit reached at 20 distinct views: %+v", quota)
	}

	exhausted, err := repo.IsExhausted(ctx, "device-1")
	if err != nil {
		t.Fatalf("IsExhausted failed: %v", err)
	}
	if !exhausted {
		t.Fatal("IsExhausted should report true at the cap")
	}
}

func TestGuestMerge_UnionsClientState(t *testing.T) {
	repo, _ := setupGuestRepo(t, 20)
	ctx := context.Background()

	if _, err := repo.RecordView(ctx, "device-1", "video-a"); err != nil {
		t.Fatalf("RecordView failed: %v", err)
	}

	quota, err := repo.Merge(ctx, "device-1", []string{"video-a", "video-b", "video-c"})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if quota.Count != 3 {
		t.Fatalf("Expected union of 3 distinct ids, got %d", quota.Count)
	}

	// Empty sync is a pure read.
	quota, err = repo.Merge(ctx, "device-1", nil)
	if err != nil {
		t.Fatalf("Empty Merge failed: %v", err)
	}
	if quota.Count != 3 {
		t.Fatalf("Empty merge must not change the count, got %d", quota.Count)
	}
}

func TestGuestReset_ClearsQuota(t *testing.T) {
	repo, _ := setupGuestRepo(t, 20)
	ctx := context.Background()

	if _, err := repo.RecordView(ctx, "device-1", "video-a"); err != nil {
		t.Fatalf("RecordView failed: %v", err)
	}
	if err := repo.Reset(ctx, "device-1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	quota, err := repo.Status(ctx, "device-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if quota.Count != 0 || quota.FirstViewAt != nil {
		t.Fatalf("Expected empty quota after reset: %+v", quota)
	}
}

func TestGuestQuota_ExpiresWithSession(t *testing.T) {
	repo, mr := setupGuestRepo(t, 20)
	ctx := context.Background()

	if _, err := repo.RecordView(ctx, "device-1", "video-a"); err != nil {
		t.Fatalf("RecordView failed: %v", err)
	}

	mr.FastForward(31 * 24 * time.Hour)

	quota, err := repo.Status(ctx, "device-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if quota.Count != 0 {
		t.Fatalf("Quota should expire with the session TTL, got count %d", quota.Count)
	}
}
