package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/repository"
	"github.com/notifyhub/waitlist/internal/worker"
)

type claimSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (c *claimSet) Claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids[id] {
		return false
	}
	c.ids[id] = true
	return true
}

func (c *claimSet) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, id)
}

func seedMembers(t *testing.T, repo *repository.MockMemberRepository, n int) []*domain.Member {
	t.Helper()
	var out []*domain.Member
	for i := 0; i < n; i++ {
		m := &domain.Member{
			ID:       uuid.NewString(),
			Email:    uuid.NewString() + "@example.com",
			JoinedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(context.Background(), m); err != nil {
			t.Fatalf("seed: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestWelcomeSweeper_QueuesPendingOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockMemberRepository()
	members := seedMembers(t, repo, 3)
	if err := repo.MarkWelcomeSent(ctx, members[0].ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	q := queue.New(queue.DefaultSizes)
	claims := &claimSet{ids: map[string]bool{}}
	s := worker.NewWelcomeSweeper(repo, q, claims, "@every 1h", 10, zap.NewNop())

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 queued, got %d", n)
	}

	high, normal, low := q.Depths()
	if high != 2 || normal != 0 || low != 0 {
		t.Fatalf("welcome tasks should be high priority: %d/%d/%d", high, normal, low)
	}
	task, _ := q.Dequeue(ctx)
	if task.Kind != domain.EmailWelcome || task.CampaignID != "" {
		t.Fatalf("unexpected task %+v", task)
	}

	// Claimed members are not queued twice.
	if n, _ := s.Sweep(ctx); n != 0 {
		t.Fatalf("expected no duplicates, got %d", n)
	}

	claims.Release(members[1].ID)
	if n, _ := s.Sweep(ctx); n != 1 {
		t.Fatalf("expected released member to be queued again, got %d", n)
	}
}

func TestWelcomeSweeper_RunRejectsBadSchedule(t *testing.T) {
	s := worker.NewWelcomeSweeper(repository.NewMockMemberRepository(), queue.New(queue.DefaultSizes),
		&claimSet{ids: map[string]bool{}}, "every now and then", 10, zap.NewNop())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestWelcomeSweeper_RunStopsOnCancel(t *testing.T) {
	s := worker.NewWelcomeSweeper(repository.NewMockMemberRepository(), queue.New(queue.DefaultSizes),
		&claimSet{ids: map[string]bool{}}, "@every 1h", 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
