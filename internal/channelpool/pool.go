/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package channelpool implements the Channel Pool of spec.md §4.6: a
// fixed-size array of Channels, an allocation policy for Session binding,
// and a reaper that idles out Channels whose listeners and bindings have
// both drained.
package channelpool

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/synssins/sonorium.dev/internal/channel"
)

// ErrNoChannelAvailable is returned when the pool is exhausted (§7).
var ErrNoChannelAvailable = errors.New("channelpool: no channel available")

// IdleTimeout is the default reaping threshold (spec default 30s).
var IdleTimeout = 30 * time.Second

// Pool holds max_channels Channels and tracks which Session (if any) each
// is bound to.
type Pool struct {
	mu       sync.Mutex
	channels []*channel.Channel
	bindings map[int]string // channel_id -> session_id

	logger zerolog.Logger

	stopReaper chan struct{}
}

// New builds a pool of size channels, numbered 1..size, and starts its
// background reaper goroutine, mirroring the teacher's health-check
// coordinator pattern of one ticker-driven sweep per service instance.
func New(size int, logger zerolog.Logger) *Pool {
	p := &Pool{
		channels:   make([]*channel.Channel, size),
		bindings:   make(map[int]string),
		logger:     logger.With().Str("component", "channel-pool").Logger(),
		stopReaper: make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.channels[i] = channel.New(i+1, logger)
	}
	go p.reapLoop()
	return p
}

// AssignOrReuse implements §4.6's allocation policy: reuse the Session's
// existing binding if still valid, else the lowest-numbered idle Channel,
// else the LRU-idle-listener Channel, else fail.
func (p *Pool) AssignOrReuse(sessionID string) (*channel.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, sid := range p.bindings {
		if sid == sessionID {
			return p.channels[id-1], nil
		}
	}

	for _, c := range p.channels {
		if c.State() == channel.StateIdle {
			p.bindings[c.ID] = sessionID
			return c, nil
		}
	}

	var lru *channel.Channel
	var lruTime time.Time
	for _, c := range p.channels {
		if c.ListenerCount() > 0 {
			continue
		}
		t := c.LastDetach()
		if lru == nil || t.Before(lruTime) {
			lru = c
			lruTime = t
		}
	}
	if lru != nil {
		lru.Stop()
		delete(p.bindings, lru.ID)
		p.bindings[lru.ID] = sessionID
		return lru, nil
	}

	return nil, ErrNoChannelAvailable
}

// Release unbinds sessionID from whatever Channel it held, without
// necessarily stopping it immediately — the reaper handles idle timeout.
func (p *Pool) Release(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sid := range p.bindings {
		if sid == sessionID {
			delete(p.bindings, id)
		}
	}
}

// ChannelState is the §6 snapshot() element.
type ChannelState struct {
	ChannelID      int
	State          channel.State
	Version        uint64
	ListenerCount  int
}

// Snapshot returns the current state of every Channel in the pool (§6).
func (p *Pool) Snapshot() []ChannelState {
	p.mu.Lock()
	chans := make([]*channel.Channel, len(p.channels))
	copy(chans, p.channels)
	p.mu.Unlock()

	out := make([]ChannelState, 0, len(chans))
	for _, c := range chans {
		out = append(out, ChannelState{
			ChannelID:     c.ID,
			State:         c.State(),
			Version:       c.Version(),
			ListenerCount: c.ListenerCount(),
		})
	}
	return out
}

// Channel returns the pool's Channel by id (1-indexed), or nil.
func (p *Pool) Channel(id int) *channel.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 1 || id > len(p.channels) {
		return nil
	}
	return p.channels[id-1]
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopReaper:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *Pool) reapOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.channels {
		if c.State() == channel.StateIdle {
			continue
		}
		if c.ListenerCount() > 0 {
			continue
		}
		if _, bound := p.bindings[c.ID]; bound {
			continue
		}
		if time.Since(c.LastDetach()) < IdleTimeout {
			continue
		}
		c.Stop()
		p.logger.Debug().Int("channel_id", c.ID).Msg("reaped idle channel")
	}
}

// Close stops the reaper goroutine.
func (p *Pool) Close() {
	close(p.stopReaper)
}
