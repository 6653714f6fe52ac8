package ceremony

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakeScheduler は待機を即座に発火させる。
type fakeScheduler struct {
	waits []time.Duration
}

func (f *fakeScheduler) After(d time.Duration) <-chan time.Time {
	f.waits = append(f.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockingScheduler は発火しないチャネルを返す。キャンセルの検証に使う。
type blockingScheduler struct{}

func (blockingScheduler) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRun_AdvancesThroughAllPhases は演出が正しい順序で完了まで進むことを検証する。
func TestRun_AdvancesThroughAllPhases(t *testing.T) {
	sched := &fakeScheduler{}
	m := NewMachineWithScheduler(DefaultTimings(), sched, testLogger())

	var seen []Phase
	if err := m.Run(context.Background(), func(p Phase) { seen = append(seen, p) }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Phase{PhaseShuffling, PhaseSelecting, PhaseRevealing, PhaseCompleted}
	if len(seen) != len(want) {
		t.Fatalf("段階の数 = %d, want %d", len(seen), len(want))
	}
	for i, p := range want {
		if seen[i] != p {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i], p)
		}
	}
	if m.Phase() != PhaseCompleted {
		t.Errorf("Phase = %s, want completed", m.Phase())
	}
}

// TestRun_UsesConfiguredTimings は各段階の演出時間が設定どおりに使われることを検証する。
func TestRun_UsesConfiguredTimings(t *testing.T) {
	sched := &fakeScheduler{}
	timings := Timings{Shuffling: 20 * time.Millisecond, Selecting: 15 * time.Millisecond, Revealing: 10 * time.Millisecond}
	m := NewMachineWithScheduler(timings, sched, testLogger())

	if err := m.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []time.Duration{timings.Shuffling, timings.Selecting, timings.Revealing}
	if len(sched.waits) != len(want) {
		t.Fatalf("待機回数 = %d, want %d", len(sched.waits), len(want))
	}
	for i, d := range want {
		if sched.waits[i] != d {
			t.Errorf("waits[%d] = %v, want %v", i, sched.waits[i], d)
		}
	}
}

// TestRun_CancelStopsMidway はキャンセルで演出が途中打ち切りされることを検証する。
func TestRun_CancelStopsMidway(t *testing.T) {
	m := NewMachineWithScheduler(DefaultTimings(), blockingScheduler{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, nil)
	}()

	// 最初の待機（shuffling→selecting）に入るのを少し待ってからキャンセル
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後もRunが戻らなかった")
	}
	if m.Phase() != PhaseShuffling {
		t.Errorf("中断時のPhase = %s, want shuffling", m.Phase())
	}
}

// TestRun_SecondRunRejected は使い切りのMachineが再実行を拒否することを検証する。
func TestRun_SecondRunRejected(t *testing.T) {
	m := NewMachineWithScheduler(DefaultTimings(), &fakeScheduler{}, testLogger())

	if err := m.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := m.Run(context.Background(), nil); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("err = %v, want ErrAlreadyRun", err)
	}
}
