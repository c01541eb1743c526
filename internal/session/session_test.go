package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/synssins/sonorium.dev/internal/channelpool"
	"github.com/synssins/sonorium.dev/internal/events"
	"github.com/synssins/sonorium.dev/internal/mediaengine"
	"github.com/synssins/sonorium.dev/internal/speakerfanout"
)

// stubSupplier is a test double for the theme supplier contract (§6),
// returning caller-configured files/overlays without touching a database.
type stubSupplier struct {
	files      []mediaengine.TrackFile
	filesErr   error
	overlay    map[string]mediaengine.PresetOverlay
	overlayErr error
}

func (s *stubSupplier) ListFiles(ctx context.Context, themeRef string) ([]mediaengine.TrackFile, error) {
	return s.files, s.filesErr
}

func (s *stubSupplier) PresetOverlay(ctx context.Context, presetRef string) (map[string]mediaengine.PresetOverlay, error) {
	return s.overlay, s.overlayErr
}

// noopFanout connects to an address nothing is listening on, so Connect's
// initial dial fails fast and returns a logged-and-dropped no-op
// Publisher, keeping these tests off the network.
func noopFanout() *speakerfanout.Publisher {
	cfg := speakerfanout.DefaultConfig()
	cfg.URL = "nats://127.0.0.1:4"
	return speakerfanout.Connect(cfg, zerolog.Nop())
}

func newTestController(supplier ThemeSupplier, poolSize int) *Controller {
	pool := channelpool.New(poolSize, zerolog.Nop())
	return New(pool, supplier, events.NewBus(), noopFanout(), nil, 48000, 2, "http://localhost/stream", zerolog.Nop())
}

func TestPlayAssignsChannelAndTracksSession(t *testing.T) {
	c := newTestController(&stubSupplier{}, 2)

	sess, err := c.Play(context.Background(), PlayRequest{ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if sess.ChannelID == 0 {
		t.Fatalf("expected a nonzero ChannelID")
	}
	if !sess.Playing {
		t.Fatalf("expected Playing = true right after Play")
	}

	got, ok := c.Session(sess.ID)
	if !ok || got.ID != sess.ID {
		t.Fatalf("Session(%s) = %+v, %v; want the session just created", sess.ID, got, ok)
	}
}

func TestPlayGeneratesIDWhenOmitted(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)

	sess, err := c.Play(context.Background(), PlayRequest{ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("expected a generated session ID")
	}
}

func TestPlayPropagatesSupplierError(t *testing.T) {
	wantErr := errors.New("theme store unavailable")
	c := newTestController(&stubSupplier{filesErr: wantErr}, 1)

	_, err := c.Play(context.Background(), PlayRequest{SessionID: "s1", ThemeRef: "forest"})
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("Play error = %v, want wrapping %v", err, wantErr)
	}
	if _, ok := c.Session("s1"); ok {
		t.Fatalf("a failed Play must not register a session")
	}
}

func TestPlayPropagatesPoolExhaustion(t *testing.T) {
	c := newTestController(&stubSupplier{}, 0)

	_, err := c.Play(context.Background(), PlayRequest{SessionID: "s1", ThemeRef: "forest"})
	if !errors.Is(err, channelpool.ErrNoChannelAvailable) {
		t.Fatalf("Play error = %v, want ErrNoChannelAvailable", err)
	}
}

func TestStopMarksSessionNotPlaying(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)
	sess, err := c.Play(context.Background(), PlayRequest{SessionID: "s1", ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.Stop(sess.ID)

	got, ok := c.Session(sess.ID)
	if !ok {
		t.Fatalf("expected the session to still be known after Stop")
	}
	if got.Playing {
		t.Fatalf("expected Playing = false after Stop")
	}
}

func TestStopOnUnknownSessionIsANoOp(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)
	c.Stop("never-played") // must not panic
}

func TestStopReleasesChannelForReuse(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)
	sess, err := c.Play(context.Background(), PlayRequest{SessionID: "s1", ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	c.Stop(sess.ID)

	next, err := c.Play(context.Background(), PlayRequest{SessionID: "s2", ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play for s2 after s1 released: %v", err)
	}
	if next.ChannelID != sess.ChannelID {
		t.Fatalf("ChannelID = %d, want %d (released channel reused by s2)", next.ChannelID, sess.ChannelID)
	}
}

func TestUpdateThemeOnUnknownSessionReturnsError(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)
	err := c.UpdateTheme(context.Background(), "ghost", "forest", "")
	if err == nil {
		t.Fatalf("expected an error for an unknown session")
	}
}

func TestUpdateThemeAdvancesChannelVersionAndSessionRefs(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)
	sess, err := c.Play(context.Background(), PlayRequest{SessionID: "s1", ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	before := c.pool.Channel(sess.ChannelID).Version()
	if err := c.UpdateTheme(context.Background(), sess.ID, "rain", "cozy"); err != nil {
		t.Fatalf("UpdateTheme: %v", err)
	}
	after := c.pool.Channel(sess.ChannelID).Version()
	if after <= before {
		t.Fatalf("Version() = %d, want > %d after UpdateTheme", after, before)
	}

	got, _ := c.Session(sess.ID)
	if got.ThemeRef != "rain" || got.PresetRef != "cozy" {
		t.Fatalf("session refs = %+v, want theme=rain preset=cozy", got)
	}
}

func TestUpdateThemePropagatesLoaderError(t *testing.T) {
	supplier := &stubSupplier{}
	c := newTestController(supplier, 1)
	sess, err := c.Play(context.Background(), PlayRequest{SessionID: "s1", ThemeRef: "forest"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	wantErr := errors.New("overlay lookup failed")
	supplier.overlayErr = wantErr
	err = c.UpdateTheme(context.Background(), sess.ID, "rain", "cozy")
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("UpdateTheme error = %v, want wrapping %v", err, wantErr)
	}
}

func TestSessionLookupMissingReturnsFalse(t *testing.T) {
	c := newTestController(&stubSupplier{}, 1)
	_, ok := c.Session("nope")
	if ok {
		t.Fatalf("expected Session() to report false for an unknown ID")
	}
}
