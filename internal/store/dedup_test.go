package store

import (
	"testing"
	"time"
)

func dedupBackends(t *testing.T) map[string]func(t *testing.T) DedupRepo {
	return map[string]func(t *testing.T) DedupRepo{
		"memory":   func(t *testing.T) DedupRepo { return NewInMemoryStore() },
		"sqlite":   func(t *testing.T) DedupRepo { return newTestSQLiteStore(t) },
		"postgres": func(t *testing.T) DedupRepo { return newTestPostgresStore(t) },
	}
}

func TestDedupRepo(t *testing.T) {
	for name, open := range dedupBackends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)

			dup, err := repo.IsDuplicate("msg-1")
			if err != nil || dup {
				t.Fatalf("IsDuplicate on empty repo = %v, %v", dup, err)
			}
			first, err := repo.RecordInbound("msg-1", "session-a")
			if err != nil || !first {
				t.Fatalf("first RecordInbound = %v, %v", first, err)
			}
			second, err := repo.RecordInbound("msg-1", "session-a")
			if err != nil {
				t.Fatalf("second RecordInbound failed: %v", err)
			}
			if second {
				t.Error("expected duplicate message to be rejected")
			}
			if err := repo.MarkProcessed("msg-1"); err != nil {
				t.Fatalf("MarkProcessed failed: %v", err)
			}
			if err := repo.MarkProcessed("unknown"); err != nil {
				t.Errorf("MarkProcessed on unknown id should be a no-op, got %v", err)
			}

			if fresh, err := repo.RecordInbound("msg-failed", "session-a"); err != nil || !fresh {
				t.Fatalf("RecordInbound(msg-failed) = %v, %v", fresh, err)
			}
			if err := repo.ReleaseInbound("msg-failed"); err != nil {
				t.Fatalf("ReleaseInbound failed: %v", err)
			}
			if dup, _ := repo.IsDuplicate("msg-failed"); dup {
				t.Error("released message still reported as duplicate")
			}
			if err := repo.ReleaseInbound("unknown"); err != nil {
				t.Errorf("ReleaseInbound on unknown id should be a no-op, got %v", err)
			}

			n, err := repo.PruneInbound(time.Now().Add(-time.Hour))
			if err != nil || n != 0 {
				t.Errorf("PruneInbound(past) = %d, %v; want 0", n, err)
			}
			n, err = repo.PruneInbound(time.Now().Add(time.Hour))
			if err != nil || n != 1 {
				t.Errorf("PruneInbound(future) = %d, %v; want 1", n, err)
			}
			if dup, _ := repo.IsDuplicate("msg-1"); dup {
				t.Error("pruned record still reported as duplicate")
			}
		})
	}
}
