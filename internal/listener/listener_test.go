package listener

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestListener(deadAfter time.Duration, depth int) *Listener {
	return &Listener{
		id:     "test",
		cfg:    Config{DeadAfterDrop: deadAfter},
		logger: zerolog.Nop(),
		queue:  make(chan []byte, depth),
		dead:   make(chan struct{}),
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	l := newTestListener(time.Hour, 2)

	l.enqueue([]byte("a"))
	l.enqueue([]byte("b"))
	l.enqueue([]byte("c")) // queue full, must drop "a"

	first := <-l.queue
	second := <-l.queue

	if string(first) != "b" || string(second) != "c" {
		t.Fatalf("got %q, %q; want b, c (oldest dropped)", first, second)
	}
}

func TestEnqueueResetsDropStreakOnSuccess(t *testing.T) {
	l := newTestListener(50*time.Millisecond, 4)
	l.dropStreak = 40 * time.Millisecond
	l.lastDropCheck = time.Now()

	l.enqueue([]byte("ok"))

	l.dropMu.Lock()
	streak := l.dropStreak
	l.dropMu.Unlock()

	if streak != 0 {
		t.Fatalf("dropStreak = %v after a successful enqueue, want 0", streak)
	}
}

func TestRecordDropMarksDeadAfterThreshold(t *testing.T) {
	l := newTestListener(50*time.Millisecond, 1)
	l.lastDropCheck = time.Now().Add(-100 * time.Millisecond)

	l.recordDrop()

	select {
	case <-l.dead:
	default:
		t.Fatalf("expected listener to be marked dead after exceeding DeadAfterDrop")
	}
}

func TestRecordDropBelowThresholdStaysAlive(t *testing.T) {
	l := newTestListener(time.Hour, 1)
	l.lastDropCheck = time.Now().Add(-10 * time.Millisecond)

	l.recordDrop()

	select {
	case <-l.dead:
		t.Fatalf("listener marked dead before exceeding DeadAfterDrop")
	default:
	}
}

func TestWritePCMReturnsDroppedWhenDead(t *testing.T) {
	l := newTestListener(time.Hour, 1)
	l.markDead()

	err := l.WritePCM([]float32{0.1, 0.2})
	if err == nil {
		t.Fatalf("expected error from WritePCM on a dead listener")
	}
}

func TestMarkDeadIsIdempotent(t *testing.T) {
	l := newTestListener(time.Hour, 1)
	l.markDead()
	l.markDead() // must not panic on double-close
	select {
	case <-l.dead:
	default:
		t.Fatalf("dead channel not closed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(48000, 2)
	if cfg.SampleRate != 48000 || cfg.Channels != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.BitrateBPS != 128000 {
		t.Fatalf("BitrateBPS = %d, want 128000", cfg.BitrateBPS)
	}
	if cfg.DeadAfterDrop != 10*time.Second {
		t.Fatalf("DeadAfterDrop = %v, want 10s", cfg.DeadAfterDrop)
	}
}
