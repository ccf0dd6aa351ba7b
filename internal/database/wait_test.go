package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePinger fails a fixed number of times before succeeding.
type fakePinger struct {
	failures int
	calls    int
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady_SucceedsFirstProbe(t *testing.T) {
	p := &fakePinger{}
	var slept []time.Duration

	err := WaitReady(context.Background(), p, WaitConfig{
		Attempts: 5,
		Interval: 2 * time.Second,
		Sleep:    func(d time.Duration) { slept = append(slept, d) },
	})
	if err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
	if len(slept) != 0 {
		t.Errorf("slept %d times, want 0", len(slept))
	}
}

func TestWaitReady_RetriesThenSucceeds(t *testing.T) {
	p := &fakePinger{failures: 3}
	var slept []time.Duration

	err := WaitReady(context.Background(), p, WaitConfig{
		Attempts: 5,
		Interval: 2 * time.Second,
		Sleep:    func(d time.Duration) { slept = append(slept, d) },
	})
	if err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if p.calls != 4 {
		t.Errorf("calls = %d, want 4", p.calls)
	}
	// Flat interval: every sleep is exactly the configured delay.
	if len(slept) != 3 {
		t.Fatalf("slept %d times, want 3", len(slept))
	}
	for i, d := range slept {
		if d != 2*time.Second {
			t.Errorf("sleep[%d] = %v, want 2s", i, d)
		}
	}
}

func TestWaitReady_ExhaustsAttempts(t *testing.T) {
	p := &fakePinger{failures: 100}
	var slept []time.Duration

	err := WaitReady(context.Background(), p, WaitConfig{
		Attempts: 3,
		Interval: time.Second,
		Sleep:    func(d time.Duration) { slept = append(slept, d) },
	})
	if err == nil {
		t.Fatal("WaitReady() expected error after exhausting attempts")
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
	// No sleep after the final failed probe.
	if len(slept) != 2 {
		t.Errorf("slept %d times, want 2", len(slept))
	}
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakePinger{failures: 100}
	err := WaitReady(ctx, p, WaitConfig{
		Attempts: 3,
		Interval: time.Second,
		Sleep:    func(time.Duration) {},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitReady() error = %v, want context.Canceled", err)
	}
	if p.calls != 0 {
		t.Errorf("calls = %d, want 0", p.calls)
	}
}
