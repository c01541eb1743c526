/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"github.com/synssins/sonorium.dev/internal/clock"
)

// playerState is the per-mode state machine position described in §4.1.
type playerState int

const (
	stateContinuousPlaying playerState = iota
	stateContinuousCrossfading

	stateSparseWaiting
	stateSparseRequesting
	stateSparsePlaying

	statePresenceActive
	statePresenceFadeOut
	statePresenceInactive
	statePresenceFadeIn
)

// SparseMinInterval / SparseMaxInterval / SparseVariance / SparseStartupDelay
// are the canonical sparse-mode scheduling constants of §6.
var (
	SparseMinInterval  = 180.0
	SparseMaxInterval  = 1800.0
	SparseVariance     = 0.30
	SparseStartupDelay = 60.0
	// SparseRecheckInterval is the short re-check wait when an exclusive
	// sparse activation is denied by the coordinator.
	SparseRecheckInterval = 5.0
	SparseRecheckJitter   = 2.0
)

// NewDecoderFunc constructs a fresh Decoder instance; injected so tests can
// swap in deterministic synthetic decoders (§4.8's offline testability
// guarantee) without shelling out to GStreamer.
type NewDecoderFunc func(sampleRate, channels int, logger zerolog.Logger) Decoder

// Player is a Recording Player (§4.1): one source file plus its track
// settings, producing mixed-ready float32 frames on demand. The Theme
// Mixer pulls; the Player produces.
type Player struct {
	id       string
	settings TrackSettings
	clk      *clock.FrameClock
	coord    *Coordinator
	newDec   NewDecoderFunc
	rate     int
	channels int
	rng      *rand.Rand
	logger   zerolog.Logger

	mode  PlaybackMode
	state playerState

	primary   Decoder
	secondary Decoder
	disabled  bool // set once on unrecoverable decode failure; emits silence forever

	// continuous-mode crossfade bookkeeping
	crossfadeWindowFrames uint64
	crossfadeElapsed      uint64

	// sparse-mode bookkeeping
	nextActivationFrame uint64
	sourceDurationFrame uint64

	// presence-mode bookkeeping
	presenceDurationFrames uint64
	presenceFadeFrames     uint64
	presencePhaseStart     uint64

	// lastEnvelope is read by the Theme Mixer to decide "active" for
	// master normalization (envelope > 0, open question 3).
	lastEnvelope float32

	onDecodeFailure func(err error)
}

// NewPlayer constructs a Recording Player for one source file. sampleRate/
// channels are the engine's canonical rate (§3); newDec lets callers inject
// synthetic decoders for tests.
func NewPlayer(id string, settings TrackSettings, clk *clock.FrameClock, coord *Coordinator, newDec NewDecoderFunc, sampleRate, channels int, logger zerolog.Logger) *Player {
	if newDec == nil {
		newDec = func(rate, ch int, logger zerolog.Logger) Decoder {
			return NewGStreamerDecoder(rate, ch, logger)
		}
	}
	p := &Player{
		id:       id,
		settings: settings,
		clk:      clk,
		coord:    coord,
		newDec:   newDec,
		rate:     sampleRate,
		channels: channels,
		rng:      rand.New(rand.NewSource(int64(hashID(id)))),
		logger:   logger.With().Str("component", "recording-player").Str("player_id", id).Logger(),
	}
	p.crossfadeWindowFrames = clock.SecondsToFrames(1.5, sampleRate)
	p.presenceDurationFrames = clock.SecondsToFrames(settings.PresencePeriod, sampleRate)
	p.presenceFadeFrames = clock.SecondsToFrames(settings.PresenceFadeDuration, sampleRate)
	return p
}

func hashID(id string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

// OnDecodeFailure registers a callback invoked (once) if this player's
// decode fails and it disables itself for the lifetime of the theme.
func (p *Player) OnDecodeFailure(fn func(err error)) {
	p.onDecodeFailure = fn
}

// Open probes the source file (for auto-mode classification and native
// sample rate) and opens the primary decoder. It never returns an error to
// the caller for decode failures on the underlying file: per §4.1's
// failure semantics, the Player instead disables itself and emits silence,
// logging the condition once. A non-nil error here means the caller's own
// arguments (e.g. invalid settings) were wrong, not that the file is bad.
func (p *Player) Open(ctx context.Context, analyzer *Analyzer) error {
	if err := p.settings.Validate(); err != nil {
		return err
	}
	if p.settings.Muted {
		p.mode = p.settings.PlaybackMode
		return nil
	}

	info, err := analyzer.Probe(ctx, p.settings.Path)
	if err != nil {
		p.disable(err)
		return nil
	}
	p.mode = ResolveMode(p.settings, info.Duration.Seconds())
	p.sourceDurationFrame = clock.SecondsToFrames(info.Duration.Seconds(), p.rate)

	dec := p.newDec(p.rate, p.channels, p.logger)
	if err := dec.Open(ctx, p.settings.Path); err != nil {
		p.disable(err)
		return nil
	}
	p.primary = dec

	switch p.mode {
	case ModeSparse:
		p.state = stateSparseWaiting
		p.scheduleNextSparseActivation(true)
	case ModePresence:
		p.state = statePresenceInactive
		p.presencePhaseStart = p.clk.Now()
	default:
		p.state = stateContinuousPlaying
	}
	return nil
}

func (p *Player) disable(err error) {
	if p.disabled {
		return
	}
	p.disabled = true
	p.logger.Warn().Err(err).Str("path", p.settings.Path).Msg("decode failure, track silenced for theme lifetime")
	if p.onDecodeFailure != nil {
		p.onDecodeFailure(err)
	}
}

// Close releases both decoder arms.
func (p *Player) Close() {
	if p.primary != nil {
		_ = p.primary.Close()
	}
	if p.secondary != nil {
		_ = p.secondary.Close()
	}
}

// Pull produces n frames of this track's contribution into dst, applying
// volume * envelope(t). Muted or disabled tracks write exact zeros and
// skip decode work entirely.
func (p *Player) Pull(dst Buffer) {
	dst.Clear()
	p.lastEnvelope = 0

	if p.settings.Muted || p.disabled {
		return
	}

	switch p.mode {
	case ModeContinuous:
		p.pullContinuous(dst)
	case ModeSparse:
		p.pullSparse(dst)
	case ModePresence:
		p.pullPresence(dst)
	default:
		p.pullContinuous(dst)
	}
}

// --- continuous mode --------------------------------------------------

func (p *Player) pullContinuous(dst Buffer) {
	if p.state == stateContinuousCrossfading {
		p.pullContinuousCrossfade(dst)
		return
	}

	n, err := p.primary.ReadFrames(dst)
	if err != nil {
		if p.settings.SeamlessLoop {
			if serr := p.primary.Seek(0); serr != nil {
				p.disable(serr)
				return
			}
			n2, err2 := p.primary.ReadFrames(dst)
			if err2 != nil {
				p.disable(err2)
				return
			}
			n = n2
		} else {
			// Near-EOF crossfade arm should already have been opened; if
			// not (very short remaining tail), open it now and begin the
			// crossfade immediately.
			if err := p.armCrossfade(); err != nil {
				p.disable(err)
				return
			}
			p.pullContinuousCrossfade(dst)
			return
		}
	}
	p.applyGain(dst, 1.0, n)

	if !p.settings.SeamlessLoop && p.secondary == nil {
		remaining := p.sourceDurationFrame - p.clk.Now()
		if remaining <= p.crossfadeWindowFrames {
			if err := p.armCrossfade(); err != nil {
				p.logger.Warn().Err(err).Msg("crossfade arm failed, continuing without")
			}
		}
	}
}

func (p *Player) armCrossfade() error {
	dec := p.newDec(p.rate, p.channels, p.logger)
	if err := dec.Open(context.Background(), p.settings.Path); err != nil {
		return err
	}
	p.secondary = dec
	p.state = stateContinuousCrossfading
	p.crossfadeElapsed = 0
	return nil
}

func (p *Player) pullContinuousCrossfade(dst Buffer) {
	primaryBuf := NewBuffer(dst.Frames, dst.Channels)
	secondaryBuf := NewBuffer(dst.Frames, dst.Channels)

	pn, perr := p.primary.ReadFrames(primaryBuf)
	sn, serr := p.secondary.ReadFrames(secondaryBuf)
	_ = pn

	W := float64(p.crossfadeWindowFrames)
	t := float64(p.crossfadeElapsed)
	u := t / W
	if u > 1 {
		u = 1
	}
	curV := float32(math.Cos(math.Pi * u / 2))
	nextV := float32(math.Sin(math.Pi * u / 2))

	for i := 0; i < dst.Frames; i++ {
		for c := 0; c < dst.Channels; c++ {
			idx := i*dst.Channels + c
			dst.Samples[idx] = primaryBuf.Samples[idx]*curV + secondaryBuf.Samples[idx]*nextV
		}
	}
	p.applyGain(dst, 1.0, dst.Frames)

	p.crossfadeElapsed += uint64(dst.Frames)

	if perr != nil || p.crossfadeElapsed >= p.crossfadeWindowFrames {
		_ = p.primary.Close()
		p.primary = p.secondary
		p.secondary = nil
		p.state = stateContinuousPlaying
		if serr != nil && sn == 0 {
			// Secondary failed before taking over; disable rather than loop forever.
			p.disable(serr)
		}
	}
}

// --- sparse mode --------------------------------------------------------

func (p *Player) scheduleNextSparseActivation(initial bool) {
	mean := lerpF(SparseMaxInterval, SparseMinInterval, float64(p.settings.Presence))
	variance := mean * SparseVariance
	jitter := (p.rng.Float64()*2 - 1) * variance
	interval := mean + jitter
	if interval < 0 {
		interval = 0
	}

	var deferral float64
	if initial {
		if p.settings.Exclusive {
			deferral = SparseStartupDelay
		} else {
			deferral = p.rng.Float64() * interval
		}
	}

	p.nextActivationFrame = p.clk.Now() + clock.SecondsToFrames(deferral+interval, p.rate)
}

func lerpF(a, b, t float64) float64 { return a + (b-a)*t }

func (p *Player) pullSparse(dst Buffer) {
	now := p.clk.Now()

	switch p.state {
	case stateSparseWaiting:
		if now >= p.nextActivationFrame {
			p.state = stateSparseRequesting
			p.pullSparse(dst)
			return
		}

	case stateSparseRequesting:
		if !p.settings.Exclusive {
			p.beginSparsePlay()
			p.pullSparse(dst)
			return
		}
		if p.coord.TryStartPlaying(p.id, p.sourceDurationFrame) {
			p.beginSparsePlay()
			p.pullSparse(dst)
			return
		}
		p.nextActivationFrame = now + clock.SecondsToFrames(SparseRecheckInterval+p.rng.Float64()*SparseRecheckJitter, p.rate)
		p.state = stateSparseWaiting

	case stateSparsePlaying:
		n, err := p.primary.ReadFrames(dst)
		if err != nil {
			if p.settings.Exclusive {
				p.coord.FinishPlaying(p.id)
			}
			_ = p.primary.Seek(0)
			p.scheduleNextSparseActivation(false)
			p.state = stateSparseWaiting
			return
		}
		p.applyGain(dst, 1.0, n)
	}
}

func (p *Player) beginSparsePlay() {
	p.state = stateSparsePlaying
}

// --- presence mode --------------------------------------------------------

func (p *Player) pullPresence(dst Buffer) {
	now := p.clk.Now()
	phase := now - p.presencePhaseStart

	dutyActive := clock.SecondsToFrames(p.settings.PresencePeriod*float64(p.settings.Presence), p.rate)
	cyc := p.presenceCycle(dutyActive, p.presenceFadeFrames)

	var envelope float32
	advancePresenceState(p, phase, cyc, &envelope)

	if envelope > 0 {
		if p.primary == nil {
			dec := p.newDec(p.rate, p.channels, p.logger)
			if err := dec.Open(context.Background(), p.settings.Path); err != nil {
				p.disable(err)
				return
			}
			p.primary = dec
		}
		n, err := p.primary.ReadFrames(dst)
		if err != nil {
			_ = p.primary.Seek(0)
			n, err = p.primary.ReadFrames(dst)
			if err != nil {
				p.disable(err)
				return
			}
		}
		p.applyGain(dst, envelope, n)
	} else {
		dst.Clear()
		if p.primary != nil {
			_ = p.primary.Close()
			p.primary = nil
		}
	}

	if phase >= cyc.cycleLen {
		p.presencePhaseStart = now
	}
}

// presenceCycleBounds marks the frame offsets, relative to a cycle's start,
// where each phase of the presence duty cycle begins. The cycle can run
// longer than presenceDurationFrames: when the active window alone (plus
// its fades) already exceeds the configured period (e.g. presence=1.0),
// there's no room left for an inactive gap, so the cycle stretches to fit
// dutyActive+2*fade instead of truncating a fade.
type presenceCycleBounds struct {
	dutyActive  uint64
	fadeOutEnd  uint64
	fadeInStart uint64
	cycleLen    uint64
}

func (p *Player) presenceCycle(dutyActive, fade uint64) presenceCycleBounds {
	fadeOutEnd := dutyActive + fade
	var inactive uint64
	if p.presenceDurationFrames > fadeOutEnd+fade {
		inactive = p.presenceDurationFrames - fadeOutEnd - fade
	}
	fadeInStart := fadeOutEnd + inactive
	return presenceCycleBounds{
		dutyActive:  dutyActive,
		fadeOutEnd:  fadeOutEnd,
		fadeInStart: fadeInStart,
		cycleLen:    fadeInStart + fade,
	}
}

// advancePresenceState computes the equal-power envelope for the presence
// duty cycle: active window, fade-out, inactive window, fade-in, repeat.
// Exclusive gating applies on each entry into the active window.
func advancePresenceState(p *Player, phase uint64, cyc presenceCycleBounds, envelope *float32) {
	fade := cyc.cycleLen - cyc.fadeInStart

	switch {
	case phase < cyc.dutyActive:
		if phase == 0 && p.settings.Exclusive {
			if !p.coord.TryStartPlaying(p.id, cyc.dutyActive) {
				*envelope = 0
				p.presencePhaseStart++ // retry next frame rather than stall forever
				return
			}
		}
		*envelope = 1
	case phase < cyc.fadeOutEnd:
		t := float64(phase-cyc.dutyActive) / float64(fade)
		*envelope = clampEnvelope(float32(math.Cos(math.Pi * t / 2)))
		if phase == cyc.dutyActive && p.settings.Exclusive {
			p.coord.FinishPlaying(p.id)
		}
	case phase < cyc.fadeInStart:
		*envelope = 0
	case phase < cyc.cycleLen:
		t := float64(phase-cyc.fadeInStart) / float64(fade)
		*envelope = clampEnvelope(float32(math.Sin(math.Pi * t / 2)))
	default:
		*envelope = 0
	}
}

// clampEnvelope keeps floating-point fade edges within spec.md §4.1's
// envelope(t) ∈ [0,1], guarding against rounding error at phase boundaries.
func clampEnvelope(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (p *Player) applyGain(dst Buffer, envelope float32, framesProduced int) {
	gain := p.settings.Volume * envelope
	p.lastEnvelope = envelope
	for i := 0; i < framesProduced*dst.Channels; i++ {
		dst.Samples[i] *= gain
	}
	for i := framesProduced * dst.Channels; i < len(dst.Samples); i++ {
		dst.Samples[i] = 0
	}
}

// LastEnvelope reports the envelope magnitude of this player's most recent
// produced frame, used by the Theme Mixer's "active" accounting (§4.3,
// §8 property 2).
func (p *Player) LastEnvelope() float32 { return p.lastEnvelope }

// ID returns the player's identity (its source path, used as the
// Exclusion Coordinator's player_id).
func (p *Player) ID() string { return p.id }

// Exclusive reports whether this player participates in mutual exclusion.
func (p *Player) Exclusive() bool { return p.settings.Exclusive }

// Muted reports whether this player is muted for mixing purposes.
func (p *Player) Muted() bool { return p.settings.Muted }
