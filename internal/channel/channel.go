/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package channel implements the Channel of spec.md §4.4: a long-lived
// producer that maintains one ever-advancing PCM frame stream per audio
// channel identity, independent of theme changes, fanning frames out to a
// registry of attached Listener Encoders.
package channel

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/synssins/sonorium.dev/internal/mediaengine"
)

// State is the Channel's lifecycle state (§3).
type State string

const (
	StateIdle         State = "idle"
	StateLoading      State = "loading"
	StatePlaying      State = "playing"
	StateTransitioning State = "transitioning"
)

// TransitionWindow is the default theme-transition crossfade window
// (spec default 3.0s, distinct from the shorter per-track loop crossfade).
var TransitionWindow = 3 * time.Second

// SampleRate / Channels are the canonical rate the whole engine mixes at
// (spec.md §3: "48 kHz stereo assumed; a single rate is fixed at build
// time").
const (
	SampleRate = 48000
	Channels   = 2
)

// transitionWindowFrames is TransitionWindow expressed in frames at the
// engine's fixed SampleRate, since §4.8 requires transition progress to be
// read from the frame counter rather than the wall clock.
func transitionWindowFrames() uint64 {
	return uint64(TransitionWindow.Seconds() * float64(SampleRate))
}

// FrameBatchSize is the number of frames produced per producer loop
// iteration (20ms at 48kHz, matching the teacher's PCM pump loop).
const FrameBatchSize = SampleRate / 50

// ThemeLoader loads a theme's files into a ready Mixer; supplied by the
// caller (usually the Session Controller) so Channel stays decoupled from
// the theme supplier contract (§6).
type ThemeLoader func(ctx context.Context) (*mediaengine.Mixer, error)

// FanOutTarget is anything the Channel's producer loop can push a PCM
// frame batch into — the MP3 Listener Encoder (§4.5) and the WebRTC
// broadcaster's Opus sink both satisfy it, so the fan-out registry does
// not need to know which compressed format a given client receives.
type FanOutTarget interface {
	ID() string
	WritePCM(samples []float32) error
}

// Channel is one engine-owned persistent output identity.
type Channel struct {
	ID int

	mu       sync.Mutex
	state    State
	current  *mediaengine.Mixer
	outgoing *mediaengine.Mixer
	version  uint64

	// transitionFrames counts frames pulled since the current transition
	// began (§4.8: "no wall-clock time enters the audio path"), advanced
	// once per pullOnce call at frame-batch granularity.
	transitionFrames uint64
	transitionDone   func()

	listeners map[string]FanOutTarget

	producerCancel context.CancelFunc
	producerDone   chan struct{}

	lastDetach time.Time

	logger zerolog.Logger
}

// ErrTransitionConflict names the case of a new load_theme arriving
// mid-transition. LoadTheme does not return it: that case is resolved by
// collapsing the transition, and LoadTheme returns nil.
var ErrTransitionConflict = fmt.Errorf("channel: transition collapsed by new load_theme")

// New constructs an idle Channel.
func New(id int, logger zerolog.Logger) *Channel {
	return &Channel{
		ID:        id,
		state:     StateIdle,
		listeners: make(map[string]FanOutTarget),
		logger:    logger.With().Str("component", "channel").Int("channel_id", id).Logger(),
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Version returns the current version counter.
func (c *Channel) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// LoadTheme instantiates a new Mixer via load and either starts fresh
// playback (from idle) or begins a theme transition (from playing or
// transitioning, per §5's collapse semantics: an in-flight transition's
// outgoing Mixer is discarded immediately and the prior incoming becomes
// the new outgoing).
func (c *Channel) LoadTheme(ctx context.Context, load ThemeLoader) error {
	next, err := load(ctx)
	if err != nil {
		return fmt.Errorf("load theme: %w", err)
	}

	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.current = next
		c.state = StatePlaying
		c.version++
		c.mu.Unlock()
		c.ensureProducer()
		return nil

	case StatePlaying:
		c.outgoing = c.current
		c.current = next
		c.state = StateTransitioning
		c.transitionFrames = 0
		c.version++
		c.mu.Unlock()
		return nil

	case StateTransitioning:
		// Collapse: discard the in-flight outgoing immediately, the
		// prior incoming becomes the new outgoing for a fresh transition.
		stale := c.outgoing
		c.outgoing = c.current
		c.current = next
		c.transitionFrames = 0
		c.version++
		c.mu.Unlock()
		if stale != nil {
			stale.Close()
		}
		return nil

	default: // loading, defensively treated like idle
		c.current = next
		c.state = StatePlaying
		c.version++
		c.mu.Unlock()
		c.ensureProducer()
		return nil
	}
}

// Stop detaches the current Mixer and returns the Channel to idle.
func (c *Channel) Stop() {
	c.mu.Lock()
	cur := c.current
	out := c.outgoing
	c.current = nil
	c.outgoing = nil
	c.state = StateIdle
	c.version++
	cancel := c.producerCancel
	c.producerCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cur != nil {
		cur.Close()
	}
	if out != nil {
		out.Close()
	}
}

// AttachListener registers a Listener Encoder with this Channel's fan-out
// registry. The listener starts receiving PCM at the Channel's current
// frame position — no rewind, no pre-roll (§4.5's start behavior).
func (c *Channel) AttachListener(l FanOutTarget) {
	c.mu.Lock()
	c.listeners[l.ID()] = l
	c.mu.Unlock()
	c.ensureProducer()
}

// DetachListener removes a Listener Encoder immediately.
func (c *Channel) DetachListener(id string) {
	c.mu.Lock()
	delete(c.listeners, id)
	empty := len(c.listeners) == 0
	if empty {
		c.lastDetach = time.Now()
	}
	c.mu.Unlock()
}

// ListenerCount returns the number of attached listeners.
func (c *Channel) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// LastDetach returns the time the listener registry last became empty,
// used by the Channel Pool's LRU reaping policy (§4.6).
func (c *Channel) LastDetach() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDetach
}

// ensureProducer starts the frame-batch producer loop if one is not
// already running. The producer pulls from the live (and, during a
// transition, outgoing) Mixer and fans the result out to every attached
// Listener — a slow listener's WritePCM never blocks this loop beyond its
// own internal buffering (§3 invariant 5, §9's fan-out re-architecture).
func (c *Channel) ensureProducer() {
	c.mu.Lock()
	if c.producerCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.producerCancel = cancel
	c.producerDone = make(chan struct{})
	c.mu.Unlock()

	go c.runProducer(ctx)
}

func (c *Channel) runProducer(ctx context.Context) {
	defer close(c.producerDone)

	dst := mediaengine.NewBuffer(FrameBatchSize, Channels)
	outBuf := mediaengine.NewBuffer(FrameBatchSize, Channels)

	ticker := time.NewTicker(time.Duration(float64(FrameBatchSize)/SampleRate*float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.pullOnce(dst, outBuf)
		c.fanOut(outBuf)
	}
}

// pullOnce performs one frame batch pull under the Channel's lock, per §5:
// "Channel's {current Mixer, outgoing Mixer, version, listener registry}
// is mutated only under a per-Channel lock; pull takes that lock briefly
// at frame-batch granularity."
func (c *Channel) pullOnce(dst, outBuf mediaengine.Buffer) {
	c.mu.Lock()
	state := c.state
	current := c.current
	outgoing := c.outgoing
	transitionFrames := c.transitionFrames
	c.mu.Unlock()

	if current == nil {
		outBuf.Clear()
		return
	}

	if state != StateTransitioning || outgoing == nil {
		current.Pull(outBuf)
		return
	}

	windowFrames := transitionWindowFrames()
	u := float64(transitionFrames) / float64(windowFrames)
	if u >= 1 {
		c.promoteTransition(outgoing)
		current.Pull(outBuf)
		return
	}

	outgoingBuf := dst
	outgoing.Pull(outgoingBuf)
	incomingBuf := mediaengine.NewBuffer(outBuf.Frames, outBuf.Channels)
	current.Pull(incomingBuf)

	curV := float32(math.Cos(math.Pi * u / 2))
	nextV := float32(math.Sin(math.Pi * u / 2))
	outBuf.Clear()
	outBuf.AddScaled(outgoingBuf, curV)
	outBuf.AddScaled(incomingBuf, nextV)

	c.mu.Lock()
	if c.state == StateTransitioning && c.outgoing == outgoing {
		c.transitionFrames += uint64(outBuf.Frames)
	}
	c.mu.Unlock()
}

func (c *Channel) promoteTransition(outgoing *mediaengine.Mixer) {
	c.mu.Lock()
	if c.outgoing == outgoing {
		c.outgoing = nil
		c.state = StatePlaying
	}
	c.mu.Unlock()
	outgoing.Close()
}

func (c *Channel) fanOut(buf mediaengine.Buffer) {
	c.mu.Lock()
	targets := make([]FanOutTarget, 0, len(c.listeners))
	for _, l := range c.listeners {
		targets = append(targets, l)
	}
	c.mu.Unlock()

	for _, l := range targets {
		if err := l.WritePCM(buf.Samples); err != nil {
			c.DetachListener(l.ID())
		}
	}
}
