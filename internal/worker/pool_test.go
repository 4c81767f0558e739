package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockResult struct {
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

type mockJob struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{err: errors.New("job error")}
	}
	return &mockResult{err: nil}
}

func TestNewPool(t *testing.T) {
	if p := NewPool(5); p.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p.workers)
	}
	if p := NewPool(0); p.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p.workers)
	}
	if p := NewPool(-1); p.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p.workers)
	}
}

func TestPoolRunsAllJobs(t *testing.T) {
	var executed int32
	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = &mockJob{executed: &executed}
	}

	results := NewPool(4).Run(context.Background(), jobs)

	if len(results) != len(jobs) {
		t.Fatalf("expected %d results, got %d", len(jobs), len(results))
	}
	if n := atomic.LoadInt32(&executed); n != int32(len(jobs)) {
		t.Fatalf("expected %d executions, got %d", len(jobs), n)
	}
}

func TestPoolCollectsErrors(t *testing.T) {
	jobs := []Job{
		&mockJob{},
		&mockJob{shouldErr: true},
		&mockJob{},
		&mockJob{shouldErr: true},
	}

	results := NewPool(2).Run(context.Background(), jobs)

	failed := 0
	for _, r := range results {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 failed results, got %d", failed)
	}
}

func TestPoolStopsFeedingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var executed int32
	jobs := make([]Job, 100)
	for i := range jobs {
		jobs[i] = &mockJob{duration: 20 * time.Millisecond, executed: &executed}
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	results := NewPool(2).Run(ctx, jobs)

	if len(results) == len(jobs) {
		t.Fatal("expected cancellation to drop queued jobs")
	}
	if len(results) == 0 {
		t.Fatal("jobs already running should still report results")
	}
}

func TestPoolMoreJobsThanWorkers(t *testing.T) {
	var executed int32
	jobs := make([]Job, 17)
	for i := range jobs {
		jobs[i] = &mockJob{executed: &executed}
	}

	results := NewPool(3).Run(context.Background(), jobs)
	if len(results) != 17 {
		t.Fatalf("expected 17 results, got %d", len(results))
	}
}
