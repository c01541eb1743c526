/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webrtc is an alternate Listener Encoder backend (§4.5): instead
// of one MP3 byte stream per HTTP client, it Opus-encodes a Channel's PCM
// once and hands every connected browser peer an RTP TrackLocal over
// WebRTC. Unlike the MP3 path, all peers share one encoder and one
// Broadcaster per Channel — broadcast, not per-client transcode.
package webrtc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// SinkConfig configures the Opus encoder subprocess feeding a Broadcaster.
type SinkConfig struct {
	SampleRate   int
	Channels     int
	RTPPort      int
	GStreamerBin string
}

// DefaultSinkConfig mirrors the MP3 Listener Encoder's own default shape,
// retargeted at an Opus/RTP pipeline instead of MP3/fdsink.
func DefaultSinkConfig(sampleRate, channels, rtpPort int) SinkConfig {
	return SinkConfig{
		SampleRate:   sampleRate,
		Channels:     channels,
		RTPPort:      rtpPort,
		GStreamerBin: "gst-launch-1.0",
	}
}

// Sink is a channel.FanOutTarget that feeds a Channel's PCM into a private
// Opus encoder subprocess, which RTP-packetizes and ships the result over
// loopback UDP to this Broadcaster's RTP listener. One Sink is shared by
// every WebRTC peer of a Channel, unlike the MP3 Listener Encoder's
// one-subprocess-per-client model (§4.5's "independence" guarantee does
// not apply across WebRTC peers: they watch one shared broadcast track).
type Sink struct {
	id     string
	logger zerolog.Logger

	encCmd   *exec.Cmd
	encStdin io.WriteCloser
	cancel   context.CancelFunc

	once sync.Once
	dead chan struct{}
}

// NewSink starts the Opus encoder subprocess, writing RTP/Opus packets to
// 127.0.0.1:cfg.RTPPort for the paired Broadcaster to pick up.
func NewSink(ctx context.Context, id string, cfg SinkConfig, logger zerolog.Logger) (*Sink, error) {
	s := &Sink{
		id:     id,
		logger: logger.With().Str("component", "webrtc-sink").Str("channel_id", id).Logger(),
		dead:   make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	pipeline := fmt.Sprintf(
		`fdsrc fd=0 ! audio/x-raw,format=F32LE,rate=%d,channels=%d,layout=interleaved ! audioconvert ! audioresample ! opusenc ! rtpopuspay ! udpsink host=127.0.0.1 port=%d`,
		cfg.SampleRate, cfg.Channels, cfg.RTPPort,
	)
	cmd := exec.CommandContext(runCtx, cfg.GStreamerBin, "-q", "-e", pipeline)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("webrtc sink stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start webrtc sink encoder: %w", err)
	}

	s.encCmd = cmd
	s.encStdin = stdin
	s.cancel = cancel

	s.logger.Debug().Int("pid", cmd.Process.Pid).Int("rtp_port", cfg.RTPPort).Msg("webrtc sink encoder started")
	return s, nil
}

// WritePCM feeds one frame batch into the Opus encoder. Like the MP3
// Listener Encoder, a write failure marks the sink dead rather than
// propagating back into the Channel's producer loop.
func (s *Sink) WritePCM(samples []float32) error {
	select {
	case <-s.dead:
		return fmt.Errorf("webrtc: sink %s is dead", s.id)
	default:
	}

	raw := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(v))
	}

	if _, err := s.encStdin.Write(raw); err != nil {
		s.markDead()
		return fmt.Errorf("webrtc sink write: %w", err)
	}
	return nil
}

// ID returns the sink's fan-out registry key, the id passed to NewSink
// (Manager uses "webrtc-" followed by the Channel ID).
func (s *Sink) ID() string { return s.id }

// Dead reports whether the encoder subprocess has failed.
func (s *Sink) Dead() <-chan struct{} { return s.dead }

func (s *Sink) markDead() {
	s.once.Do(func() {
		close(s.dead)
		s.logger.Warn().Msg("webrtc sink encoder died")
	})
}

// Close terminates the encoder subprocess.
func (s *Sink) Close() error {
	s.markDead()
	if s.cancel != nil {
		s.cancel()
	}
	if s.encStdin != nil {
		_ = s.encStdin.Close()
	}
	if s.encCmd != nil && s.encCmd.Process != nil {
		_ = s.encCmd.Process.Kill()
	}
	return nil
}
