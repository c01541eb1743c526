/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session implements the Session Controller of spec.md §4.7: it
// binds higher-level intent (a Session) to engine primitives, obtaining a
// Channel from the pool, resolving theme/preset overlays, and emitting
// fire-and-forget speaker fan-out notifications.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/synssins/sonorium.dev/internal/channel"
	"github.com/synssins/sonorium.dev/internal/channelpool"
	"github.com/synssins/sonorium.dev/internal/events"
	"github.com/synssins/sonorium.dev/internal/mediaengine"
	"github.com/synssins/sonorium.dev/internal/speakerfanout"
	"github.com/synssins/sonorium.dev/internal/storage"
)

// ThemeSupplier is the §6 theme supplier contract, satisfied by
// internal/themestore.Store or any test double.
type ThemeSupplier interface {
	ListFiles(ctx context.Context, themeRef string) ([]mediaengine.TrackFile, error)
	PresetOverlay(ctx context.Context, presetRef string) (map[string]mediaengine.PresetOverlay, error)
}

// Session is the external binding of {theme, preset, speakers, volume,
// play state} to an engine Channel (§3's Session concept).
type Session struct {
	ID             string
	ThemeRef       string
	PresetRef      string
	Volume         float32
	SpeakerTargets []string

	ChannelID int
	Playing   bool
}

// Controller wraps a ChannelPool and ThemeSupplier with the request-struct
// style of the teacher's priority.Service (named request types, a thin
// wrapper that resolves, delegates, then publishes an event).
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*Session

	pool     *channelpool.Pool
	supplier ThemeSupplier
	bus      *events.Bus
	fanout   *speakerfanout.Publisher
	resolver *storage.Resolver
	rate     int
	channels int

	streamURLPrefix string

	logger zerolog.Logger
}

// New builds a Session Controller. resolver may be nil, in which case
// theme files are always opened as local paths (no object storage
// configured, per spec.md's reference theme supplier deployment).
func New(pool *channelpool.Pool, supplier ThemeSupplier, bus *events.Bus, fanout *speakerfanout.Publisher, resolver *storage.Resolver, sampleRate, channelsCount int, streamURLPrefix string, logger zerolog.Logger) *Controller {
	return &Controller{
		sessions:        make(map[string]*Session),
		pool:            pool,
		supplier:        supplier,
		bus:             bus,
		fanout:          fanout,
		resolver:        resolver,
		rate:            sampleRate,
		channels:        channelsCount,
		streamURLPrefix: streamURLPrefix,
		logger:          logger.With().Str("component", "session-controller").Logger(),
	}
}

// PlayRequest describes a request to begin or resume playing a Session.
type PlayRequest struct {
	SessionID      string
	ThemeRef       string
	PresetRef      string
	Volume         float32
	SpeakerTargets []string
}

// Play resolves theme/preset, obtains a Channel, and loads the theme onto
// it, per §4.7 steps 1-4.
func (c *Controller) Play(ctx context.Context, req PlayRequest) (*Session, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ch, err := c.pool.AssignOrReuse(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("play session: %w", err)
	}

	loader := c.themeLoader(req.ThemeRef, req.PresetRef)
	if err := ch.LoadTheme(ctx, loader); err != nil {
		return nil, fmt.Errorf("play session: %w", err)
	}

	c.mu.Lock()
	sess := &Session{
		ID:             req.SessionID,
		ThemeRef:       req.ThemeRef,
		PresetRef:      req.PresetRef,
		Volume:         req.Volume,
		SpeakerTargets: req.SpeakerTargets,
		ChannelID:      ch.ID,
		Playing:        true,
	}
	c.sessions[req.SessionID] = sess
	c.mu.Unlock()

	streamURL := fmt.Sprintf("%s/%d", c.streamURLPrefix, ch.ID)
	c.fanout.Publish(speakerfanout.Event{
		SessionID:      sess.ID,
		Action:         "play",
		StreamURL:      streamURL,
		SpeakerTargets: sess.SpeakerTargets,
	})
	c.bus.Publish(events.EventSpeakerFanout, events.Payload{
		"session_id": sess.ID, "action": "play", "stream_url": streamURL,
	})

	return sess, nil
}

// Stop unbinds sessionID from its Channel (§4.7: "unbind from Channel, may
// trigger reaping").
func (c *Controller) Stop(sessionID string) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	if ok {
		sess.Playing = false
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.pool.Release(sessionID)

	c.fanout.Publish(speakerfanout.Event{
		SessionID:      sessionID,
		Action:         "stop",
		SpeakerTargets: sess.SpeakerTargets,
	})
	c.bus.Publish(events.EventSpeakerFanout, events.Payload{
		"session_id": sessionID, "action": "stop",
	})
}

// UpdateTheme re-issues load_theme on the Session's bound Channel,
// triggering a crossfaded theme transition per §4.7's last line.
func (c *Controller) UpdateTheme(ctx context.Context, sessionID, themeRef, presetRef string) error {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("session controller: unknown session %s", sessionID)
	}

	ch := c.pool.Channel(sess.ChannelID)
	if ch == nil {
		return fmt.Errorf("session controller: channel %d not found", sess.ChannelID)
	}

	loader := c.themeLoader(themeRef, presetRef)
	if err := ch.LoadTheme(ctx, loader); err != nil {
		return fmt.Errorf("update theme: %w", err)
	}

	c.mu.Lock()
	sess.ThemeRef = themeRef
	sess.PresetRef = presetRef
	c.mu.Unlock()

	c.bus.Publish(events.EventChannelStateChanged, events.Payload{
		"channel_id": ch.ID, "version": ch.Version(),
	})
	return nil
}

// themeLoader builds a channel.ThemeLoader that resolves files+overlay
// from the theme supplier and constructs a ready Mixer (§4.7 step 1).
func (c *Controller) themeLoader(themeRef, presetRef string) channel.ThemeLoader {
	return func(ctx context.Context) (*mediaengine.Mixer, error) {
		files, err := c.supplier.ListFiles(ctx, themeRef)
		if err != nil {
			return nil, err
		}

		if presetRef != "" {
			overlay, err := c.supplier.PresetOverlay(ctx, presetRef)
			if err != nil {
				return nil, err
			}
			for i, f := range files {
				if o, ok := overlay[f.Path]; ok {
					files[i].Settings = o.Apply(f.Settings)
				}
			}
		}

		if c.resolver != nil {
			for i, f := range files {
				if !storage.IsRemote(f.Path) {
					continue
				}
				local, err := c.resolver.Resolve(ctx, f.Path)
				if err != nil {
					return nil, fmt.Errorf("resolve remote theme file %s: %w", f.Path, err)
				}
				files[i].Path = local
				files[i].Settings.Path = local
			}
		}

		mixer := mediaengine.NewMixer(c.rate, c.channels, c.logger)
		failures := 0
		if err := mixer.Load(ctx, files, nil, func(path string, ferr error) {
			failures++
			c.bus.Publish(events.EventChannelDecodeFailure, events.Payload{
				"theme_ref": themeRef, "path": path, "error": ferr.Error(),
			})
		}); err != nil {
			mixer.Close()
			return nil, err
		}
		return mixer, nil
	}
}

// Session returns the current state of sessionID, if known.
func (c *Controller) Session(sessionID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[sessionID]
	return sess, ok
}
