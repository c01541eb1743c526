/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import "fmt"

// PlaybackMode enumerates the four per-track state machines of §4.1.
type PlaybackMode string

const (
	ModeAuto       PlaybackMode = "auto"
	ModeContinuous PlaybackMode = "continuous"
	ModeSparse     PlaybackMode = "sparse"
	ModePresence   PlaybackMode = "presence"
)

// TrackSettings is a read-only value snapshot of one track's configuration,
// taken at theme load per spec.md §5 ("Track settings are read-only
// snapshots taken at theme load; live setting changes require a new
// load_theme call"). It is deliberately a plain struct, not a live-bound
// dict, per the re-architecture guidance in spec.md §9 ("replace dynamic
// reflection of track settings dicts with a settings struct taken by value
// at theme load").
type TrackSettings struct {
	Path string

	Volume       float32
	Presence     float32
	PlaybackMode PlaybackMode
	SeamlessLoop bool
	Exclusive    bool
	Muted        bool

	// PresencePeriod / PresenceFadeDuration are theme-level overrides for
	// presence-mode timing (spec.md §9 open question 2: left
	// under-specified in source, exposed here as explicit options rather
	// than a hardcoded constant).
	PresencePeriod       float64 // seconds
	PresenceFadeDuration float64 // seconds

	// LongFileThresholdSeconds / ShortFileThresholdSeconds drive auto-mode
	// classification (§4.1); themes may override the engine defaults.
	LongFileThresholdSeconds  float64
	ShortFileThresholdSeconds float64
}

// DefaultTrackSettings returns the engine's built-in defaults; a theme's
// resolver overlays these with per-file values and any preset overlay.
func DefaultTrackSettings(path string) TrackSettings {
	return TrackSettings{
		Path:                      path,
		Volume:                    1.0,
		Presence:                  0.5,
		PlaybackMode:              ModeAuto,
		SeamlessLoop:              false,
		Exclusive:                 false,
		Muted:                     false,
		PresencePeriod:            90,
		PresenceFadeDuration:      10,
		LongFileThresholdSeconds:  60,
		ShortFileThresholdSeconds: 10,
	}
}

// PresetOverlay is a partial override of TrackSettings fields, as supplied
// by the external theme collaborator's preset_overlay(preset_ref) contract
// (§6). A nil pointer field means "leave the base value".
type PresetOverlay struct {
	Volume       *float32
	Presence     *float32
	PlaybackMode *PlaybackMode
	SeamlessLoop *bool
	Exclusive    *bool
	Muted        *bool
}

// Apply returns base with overlay's non-nil fields applied on top,
// matching the teacher's request-struct style of building up a final value
// from a base plus named overrides (priority.Service's request types).
func (o PresetOverlay) Apply(base TrackSettings) TrackSettings {
	out := base
	if o.Volume != nil {
		out.Volume = *o.Volume
	}
	if o.Presence != nil {
		out.Presence = *o.Presence
	}
	if o.PlaybackMode != nil {
		out.PlaybackMode = *o.PlaybackMode
	}
	if o.SeamlessLoop != nil {
		out.SeamlessLoop = *o.SeamlessLoop
	}
	if o.Exclusive != nil {
		out.Exclusive = *o.Exclusive
	}
	if o.Muted != nil {
		out.Muted = *o.Muted
	}
	return out
}

// ResolveMode classifies `auto` into continuous or sparse using the
// probed file duration, per §4.1's threshold rules. Non-auto modes pass
// through unchanged.
func ResolveMode(settings TrackSettings, duration float64) PlaybackMode {
	if settings.PlaybackMode != ModeAuto {
		return settings.PlaybackMode
	}
	if duration >= settings.LongFileThresholdSeconds {
		return ModeContinuous
	}
	if duration <= settings.ShortFileThresholdSeconds {
		return ModeSparse
	}
	return ModeContinuous
}

// Validate rejects settings combinations that cannot be resolved into a
// working Recording Player (e.g. an empty path).
func (s TrackSettings) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("track settings: empty path")
	}
	if s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("track settings: volume %v out of [0,1]", s.Volume)
	}
	if s.Presence < 0 || s.Presence > 1 {
		return fmt.Errorf("track settings: presence %v out of [0,1]", s.Presence)
	}
	return nil
}
