package mediaengine

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
)

// newLivePlayer builds a Player whose Pull() immediately produces a
// constant-value continuous stream, bypassing Open/probe entirely so
// tests never shell out to GStreamer.
func newLivePlayer(id string, m *Mixer, settings TrackSettings, value float32) *Player {
	p := NewPlayer(id, settings, m.clk, m.coord, nil, m.clk.SampleRate(), m.channels, zerolog.Nop())
	p.primary = &constantDecoder{rate: m.clk.SampleRate(), channels: m.channels, value: value}
	p.mode = ModeContinuous
	p.state = stateContinuousPlaying
	p.sourceDurationFrame = 1_000_000
	return p
}

func TestMixerPullAdvancesClockExactlyOncePerPull(t *testing.T) {
	m := NewMixer(48000, 2, zerolog.Nop())
	dst := NewBuffer(64, 2)

	m.Pull(dst)
	if m.Now() != 64 {
		t.Fatalf("Now() = %d after one pull of 64 frames, want 64", m.Now())
	}
	m.Pull(dst)
	if m.Now() != 128 {
		t.Fatalf("Now() = %d after two pulls, want 128", m.Now())
	}
}

func TestMixerNormalizesBySqrtActiveCount(t *testing.T) {
	m := NewMixer(48000, 2, zerolog.Nop())
	s := DefaultTrackSettings("a.flac")
	s.Volume = 1.0

	m.players = append(m.players, newLivePlayer("a", m, s, 1.0), newLivePlayer("b", m, s, 1.0))

	dst := NewBuffer(8, 2)
	m.Pull(dst)

	want := float32(2.0 / math.Sqrt(2))
	for i, got := range dst.Samples {
		if d := got - want; d > 1e-4 || d < -1e-4 {
			t.Fatalf("sample %d = %v, want ~%v (2 active tracks, 1/sqrt(2) normalization)", i, got, want)
		}
	}
}

func TestMixerSingleActiveTrackNoAttenuation(t *testing.T) {
	m := NewMixer(48000, 2, zerolog.Nop())
	s := DefaultTrackSettings("a.flac")

	m.players = append(m.players, newLivePlayer("a", m, s, 0.5))

	dst := NewBuffer(8, 2)
	m.Pull(dst)

	for i, got := range dst.Samples {
		if d := got - 0.5; d > 1e-5 || d < -1e-5 {
			t.Fatalf("sample %d = %v, want 0.5 (single active track, no normalization penalty)", i, got)
		}
	}
}

func TestMixerMutedTrackExcludedFromActiveCount(t *testing.T) {
	m := NewMixer(48000, 2, zerolog.Nop())
	active := DefaultTrackSettings("a.flac")
	muted := DefaultTrackSettings("b.flac")
	muted.Muted = true

	m.players = append(m.players, newLivePlayer("a", m, active, 0.5), newLivePlayer("b", m, muted, 0.9))

	dst := NewBuffer(8, 2)
	m.Pull(dst)

	for i, got := range dst.Samples {
		if d := got - 0.5; d > 1e-5 || d < -1e-5 {
			t.Fatalf("sample %d = %v, want 0.5 (muted track contributes nothing, no normalization)", i, got)
		}
	}
}

func TestMixerMasterGainClampedToRange(t *testing.T) {
	m := NewMixer(48000, 2, zerolog.Nop())
	m.SetMasterGain(5)
	if m.masterGain != 2 {
		t.Fatalf("masterGain = %v, want clamped to 2", m.masterGain)
	}
	m.SetMasterGain(-1)
	if m.masterGain != 0 {
		t.Fatalf("masterGain = %v, want clamped to 0", m.masterGain)
	}
}

func TestMixerEmptyProducesSilence(t *testing.T) {
	m := NewMixer(48000, 2, zerolog.Nop())
	dst := NewBuffer(16, 2)
	for i := range dst.Samples {
		dst.Samples[i] = 9
	}
	m.Pull(dst)
	for i, s := range dst.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 for an empty mixer", i, s)
		}
	}
}
