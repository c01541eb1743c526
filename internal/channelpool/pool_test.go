package channelpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/synssins/sonorium.dev/internal/channel"
	"github.com/synssins/sonorium.dev/internal/mediaengine"
)

func TestAssignOrReuseReturnsLowestNumberedIdleChannel(t *testing.T) {
	p := New(3, zerolog.Nop())
	defer p.Close()

	c, err := p.AssignOrReuse("session-1")
	if err != nil {
		t.Fatalf("AssignOrReuse: %v", err)
	}
	if c.ID != 1 {
		t.Fatalf("ID = %d, want 1 (lowest-numbered idle channel)", c.ID)
	}
}

func TestAssignOrReuseReturnsExistingBindingForSameSession(t *testing.T) {
	p := New(3, zerolog.Nop())
	defer p.Close()

	first, _ := p.AssignOrReuse("session-1")
	second, err := p.AssignOrReuse("session-1")
	if err != nil {
		t.Fatalf("AssignOrReuse: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ID = %d, want %d (reused binding for same session)", second.ID, first.ID)
	}
}

// loadIdleTheme moves a channel out of StateIdle so AssignOrReuse's
// idle-channel scan no longer treats it as free, mirroring how the Session
// Controller calls LoadTheme right after binding a channel.
func loadIdleTheme(t *testing.T, c *channel.Channel) {
	t.Helper()
	err := c.LoadTheme(context.Background(), func(ctx context.Context) (*mediaengine.Mixer, error) {
		return mediaengine.NewMixer(channel.SampleRate, channel.Channels, zerolog.Nop()), nil
	})
	if err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}
}

func TestAssignOrReuseFillsIdleChannelsThenReclaimsLRU(t *testing.T) {
	p := New(2, zerolog.Nop())
	defer p.Close()

	c1, err := p.AssignOrReuse("session-1")
	if err != nil {
		t.Fatalf("AssignOrReuse(1): %v", err)
	}
	loadIdleTheme(t, c1)

	c2, err := p.AssignOrReuse("session-2")
	if err != nil {
		t.Fatalf("AssignOrReuse(2): %v", err)
	}
	loadIdleTheme(t, c2)

	if c1.ID == c2.ID {
		t.Fatalf("two distinct sessions were given the same channel %d", c1.ID)
	}

	// Both channels are now playing with no listeners attached, so the
	// LRU fallback should reclaim the one idle the longest rather than
	// failing outright.
	_, err = p.AssignOrReuse("session-3")
	if err != nil {
		t.Fatalf("AssignOrReuse(3) via LRU fallback: %v", err)
	}
}

func TestAssignOrReuseFailsOnAnEmptyPool(t *testing.T) {
	p := New(0, zerolog.Nop())
	defer p.Close()

	_, err := p.AssignOrReuse("session-1")
	if !errors.Is(err, ErrNoChannelAvailable) {
		t.Fatalf("err = %v, want ErrNoChannelAvailable for an empty pool", err)
	}
}

func TestReleaseUnbindsSession(t *testing.T) {
	p := New(1, zerolog.Nop())
	defer p.Close()

	c1, _ := p.AssignOrReuse("session-1")
	p.Release("session-1")

	c2, err := p.AssignOrReuse("session-2")
	if err != nil {
		t.Fatalf("AssignOrReuse after release: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("ID = %d, want %d (released channel reused by a new session)", c2.ID, c1.ID)
	}
}

func TestSnapshotReportsEveryChannel(t *testing.T) {
	p := New(3, zerolog.Nop())
	defer p.Close()

	_, _ = p.AssignOrReuse("session-1")

	snap := p.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snapshot) = %d, want 3", len(snap))
	}
	for i, s := range snap {
		if s.ChannelID != i+1 {
			t.Fatalf("snapshot[%d].ChannelID = %d, want %d", i, s.ChannelID, i+1)
		}
	}
}

func TestChannelLookupByID(t *testing.T) {
	p := New(2, zerolog.Nop())
	defer p.Close()

	if c := p.Channel(1); c == nil || c.ID != 1 {
		t.Fatalf("Channel(1) = %+v, want channel with ID 1", c)
	}
	if c := p.Channel(0); c != nil {
		t.Fatalf("Channel(0) = %+v, want nil (out of range)", c)
	}
	if c := p.Channel(3); c != nil {
		t.Fatalf("Channel(3) = %+v, want nil (out of range)", c)
	}
}

func TestReapOnceStopsUnboundTimedOutChannel(t *testing.T) {
	c := channel.New(1, zerolog.Nop())
	if err := c.LoadTheme(context.Background(), func(ctx context.Context) (*mediaengine.Mixer, error) {
		return mediaengine.NewMixer(channel.SampleRate, channel.Channels, zerolog.Nop()), nil
	}); err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}

	p := &Pool{
		channels:   []*channel.Channel{c},
		bindings:   make(map[int]string),
		logger:     zerolog.Nop(),
		stopReaper: make(chan struct{}),
	}

	savedTimeout := IdleTimeout
	IdleTimeout = time.Millisecond
	defer func() { IdleTimeout = savedTimeout }()

	p.reapOnce()

	if c.State() != channel.StateIdle {
		t.Fatalf("State() = %v, want idle after reaping", c.State())
	}
}

func TestReapOnceSkipsBoundChannels(t *testing.T) {
	c := channel.New(1, zerolog.Nop())
	if err := c.LoadTheme(context.Background(), func(ctx context.Context) (*mediaengine.Mixer, error) {
		return mediaengine.NewMixer(channel.SampleRate, channel.Channels, zerolog.Nop()), nil
	}); err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}

	p := &Pool{
		channels:   []*channel.Channel{c},
		bindings:   map[int]string{1: "session-1"},
		logger:     zerolog.Nop(),
		stopReaper: make(chan struct{}),
	}
	savedTimeout := IdleTimeout
	IdleTimeout = time.Millisecond
	defer func() { IdleTimeout = savedTimeout }()

	p.reapOnce()
	defer c.Stop()

	if c.State() == channel.StateIdle {
		t.Fatalf("bound channel was reaped despite an active session binding")
	}
}
