/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"github.com/synssins/sonorium.dev/internal/clock"
)

// TrackFile pairs a source path with its resolved settings, as produced by
// the theme supplier contract's list_files(theme_ref) (§6).
type TrackFile struct {
	Path     string
	Settings TrackSettings
}

// Mixer is the Theme Mixer of §4.3: owns an ordered set of Recording
// Players, a monotonic frame counter, a master headroom coefficient, and
// its own Exclusion Coordinator. One Mixer is "live" per Channel; a
// Channel may hold up to two (current + outgoing) during a transition.
type Mixer struct {
	clk        *clock.FrameClock
	coord      *Coordinator
	players    []*Player
	masterGain float32
	channels   int
	logger     zerolog.Logger
}

// NewMixer builds an empty Theme Mixer bound to its own fresh frame clock,
// per §3's "one Theme Mixer... holds a monotonic frame counter" (each
// Mixer, not the Channel, owns the clock it and its Players share).
func NewMixer(sampleRate, channels int, logger zerolog.Logger) *Mixer {
	clk := clock.New(sampleRate)
	m := &Mixer{
		clk:        clk,
		channels:   channels,
		masterGain: 1.0,
		logger:     logger.With().Str("component", "theme-mixer").Logger(),
	}
	m.coord = NewCoordinator(clk, m.logger)
	return m
}

// Load opens a Recording Player for each track file, applying the
// supplied decoder constructor (nil selects the real GStreamer decoder).
// A track whose file cannot be probed disables itself and contributes
// silence rather than aborting the whole load, per §4.1's failure
// semantics; only a structural settings error aborts here.
func (m *Mixer) Load(ctx context.Context, files []TrackFile, newDec NewDecoderFunc, onDecodeFailure func(path string, err error)) error {
	analyzer := NewAnalyzer(m.logger)
	for _, f := range files {
		settings := f.Settings
		settings.Path = f.Path
		player := NewPlayer(f.Path, settings, m.clk, m.coord, newDec, m.clk.SampleRate(), m.channels, m.logger)
		if onDecodeFailure != nil {
			player.OnDecodeFailure(func(err error) { onDecodeFailure(f.Path, err) })
		}
		if err := player.Open(ctx, analyzer); err != nil {
			return err
		}
		m.players = append(m.players, player)
	}
	return nil
}

// SetMasterGain clamps gain to [0,2] (SUPPLEMENTED FEATURES: a narrow
// loudness-aware clamp, not a full DSP graph) and logs once if the caller
// requested an out-of-range value.
func (m *Mixer) SetMasterGain(gain float32) {
	if gain < 0 || gain > 2 {
		m.logger.Warn().Float32("requested", gain).Msg("master_gain out of [0,2], clamped")
	}
	if gain < 0 {
		gain = 0
	}
	if gain > 2 {
		gain = 2
	}
	m.masterGain = gain
}

// Pull implements the pull-based producer interface (§9 re-architecture
// guidance): sums every non-muted Player's contribution into dst, applies
// 1/sqrt(active_track_count) normalization and master_gain, and advances
// the frame counter by dst.Frames. No hard clipping happens here; that is
// strictly an encoder-boundary concern (§4.3).
func (m *Mixer) Pull(dst Buffer) Buffer {
	dst.Clear()

	scratch := NewBuffer(dst.Frames, dst.Channels)
	activeCount := 0

	for _, player := range m.players {
		if player.Muted() {
			continue
		}
		player.Pull(scratch)
		dst.AddScaled(scratch, 1.0)
		if player.LastEnvelope() > 0 {
			activeCount++
		}
	}

	norm := float32(1.0 / math.Sqrt(math.Max(1, float64(activeCount))))
	dst.Scale(norm * m.masterGain)

	// The frame counter is shared by every Player through this Mixer's
	// clock (§4.8); it must advance exactly once per pull, after every
	// Player has read "now" for its own scheduling, not once per Player.
	m.clk.Advance(dst.Frames)
	return dst
}

// Close releases every Player's decoders. Called when the Mixer is
// destroyed (Channel stop, or promotion past a transition).
func (m *Mixer) Close() {
	for _, player := range m.players {
		player.Close()
	}
}

// Now returns the Mixer's current frame position.
func (m *Mixer) Now() uint64 { return m.clk.Now() }

// Coordinator exposes the Mixer's Exclusion Coordinator for diagnostics.
func (m *Mixer) Coordinator() *Coordinator { return m.coord }
