/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/synssins/sonorium.dev/internal/clock"
)

// MinGapAfterExclusive is the cooldown window after an exclusive player
// finishes, before another exclusive player in the same Theme Mixer may
// start (spec default 30s).
var MinGapAfterExclusive = clock.SecondsToFrames(30, 48000)

// InitialExclusiveDelay defers the first exclusive grant after theme load
// to avoid a cluster of exclusive hits at startup (spec default 60s).
var InitialExclusiveDelay = clock.SecondsToFrames(60, 48000)

// Coordinator is the Exclusion Coordinator of spec.md §4.2: one instance
// per Theme Mixer, enforcing mutual exclusion across all exclusive-tagged
// Recording Players that share it. All "now" reads come from the owning
// Theme Mixer's FrameClock, never the wall clock, so behavior stays
// deterministic under a fixed clock (spec.md §4.8).
type Coordinator struct {
	mu sync.Mutex

	clk *clock.FrameClock

	active       string // player_id currently granted, "" if none
	playEndFrame uint64
	cooldownFrame uint64
	everGranted  bool

	logger zerolog.Logger
}

// NewCoordinator builds a Coordinator bound to clk. Re-scoping the mutex to
// the Theme Mixer, rather than a module-global lock, mirrors the teacher's
// priority.Resolver pattern of one authority object per owning scope.
func NewCoordinator(clk *clock.FrameClock, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		clk:    clk,
		logger: logger.With().Str("component", "exclusion-coordinator").Logger(),
	}
}

// TryStartPlaying grants exclusive playback to playerID for expectedFrames
// if no other exclusive player is active and the coordinator is not in
// cooldown (and, for the very first grant after theme load, frame_time has
// reached InitialExclusiveDelay).
func (c *Coordinator) TryStartPlaying(playerID string, expectedFrames uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()

	if !c.everGranted && now < InitialExclusiveDelay {
		return false
	}
	if c.active != "" {
		return false
	}
	if now < c.cooldownFrame {
		return false
	}

	c.active = playerID
	c.playEndFrame = now + expectedFrames
	c.everGranted = true
	c.logger.Debug().Str("player_id", playerID).Uint64("frame", now).Msg("exclusive grant")
	return true
}

// FinishPlaying releases playerID's exclusive hold and starts the cooldown
// window. Calling it for a player that does not currently hold the slot is
// a no-op, matching "at most one player_id is active at any instant".
func (c *Coordinator) FinishPlaying(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != playerID {
		return
	}
	c.active = ""
	c.cooldownFrame = c.clk.Now() + MinGapAfterExclusive
	c.logger.Debug().Str("player_id", playerID).Msg("exclusive release")
}

// IsBlocked reports whether a play is currently active or cooldown has not
// elapsed, without revealing which player holds the slot.
func (c *Coordinator) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != "" {
		return true
	}
	return c.clk.Now() < c.cooldownFrame
}
