/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package listener implements the Listener Encoder of spec.md §4.5: one
// per-client PCM-to-compressed pipeline with a bounded output queue and a
// mandatory non-blocking backpressure policy, so one slow HTTP client can
// never stall the Channel that feeds it.
package listener

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrDropped is recorded internally when backpressure forces the listener
// to be torn down (§7's ListenerDropped); it never propagates beyond the
// listener that owns it.
var ErrDropped = fmt.Errorf("listener: dropped due to sustained backpressure")

// Config configures one Listener's encoder.
type Config struct {
	SampleRate     int
	Channels       int
	BitrateBPS     int
	BufferSeconds  float64 // default 2s (listener_buffer_s)
	DeadAfterDrop  time.Duration // default 10s (listener_dead_after_drop_s)
	GStreamerBin   string
}

// DefaultConfig returns the spec's canonical constants (§6).
func DefaultConfig(sampleRate, channels int) Config {
	return Config{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitrateBPS:    128000,
		BufferSeconds: 2,
		DeadAfterDrop: 10 * time.Second,
		GStreamerBin:  "gst-launch-1.0",
	}
}

// Listener owns a private MP3 encoder subprocess and a bounded output
// queue. Two listeners on the same Channel receive identical PCM but
// produce independently encoded byte streams (§4.5's "independence"
// guarantee): neither's encoder state nor its queue is shared.
type Listener struct {
	id     string
	cfg    Config
	logger zerolog.Logger

	queue chan []byte
	dead  chan struct{}
	once  sync.Once

	dropMu        sync.Mutex
	dropStreak    time.Duration
	lastDropCheck time.Time

	encCmd    *exec.Cmd
	encStdin  io.WriteCloser
	encStdout io.ReadCloser
	cancel    context.CancelFunc
}

// New starts the listener's private encoder subprocess. The queue is sized
// to BufferSeconds of compressed audio at BitrateBPS.
func New(ctx context.Context, id string, cfg Config, logger zerolog.Logger) (*Listener, error) {
	queueBytes := int(cfg.BufferSeconds * float64(cfg.BitrateBPS) / 8)
	// Queue holds encoded chunks, not raw bytes; approximate a chunk as
	// ~4KB of MP3 so the channel depth corresponds to roughly BufferSeconds.
	depth := queueBytes / 4096
	if depth < 4 {
		depth = 4
	}

	l := &Listener{
		id:     id,
		cfg:    cfg,
		logger: logger.With().Str("component", "listener-encoder").Str("listener_id", id).Logger(),
		queue:  make(chan []byte, depth),
		dead:   make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	pipeline := fmt.Sprintf(
		`fdsrc fd=0 ! audio/x-raw,format=F32LE,rate=%d,channels=%d,layout=interleaved ! audioconvert ! lamemp3enc target=bitrate bitrate=%d cbr=true ! fdsink fd=1`,
		cfg.SampleRate, cfg.Channels, cfg.BitrateBPS/1000,
	)
	cmd := exec.CommandContext(runCtx, cfg.GStreamerBin, "-q", "-e", pipeline)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listener encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listener encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start listener encoder: %w", err)
	}

	l.encCmd = cmd
	l.encStdin = stdin
	l.encStdout = stdout
	l.cancel = cancel

	go l.pumpEncoderOutput()

	l.logger.Debug().Int("pid", cmd.Process.Pid).Msg("listener encoder started")
	return l, nil
}

// pumpEncoderOutput reads compressed chunks off the encoder's stdout and
// enqueues them, applying the mandatory drop-oldest-on-full policy.
func (l *Listener) pumpEncoderOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := l.encStdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.enqueue(chunk)
		}
		if err != nil {
			return
		}
	}
}

// enqueue applies the §4.5 backpressure contract: on queue full, drop the
// oldest encoded frame and continue — never block the Channel's producer.
func (l *Listener) enqueue(chunk []byte) {
	select {
	case l.queue <- chunk:
		l.resetDropStreak()
		return
	default:
	}

	select {
	case <-l.queue:
	default:
	}
	select {
	case l.queue <- chunk:
	default:
	}
	l.recordDrop()
}

func (l *Listener) resetDropStreak() {
	l.dropMu.Lock()
	l.dropStreak = 0
	l.lastDropCheck = time.Time{}
	l.dropMu.Unlock()
}

// recordDrop accumulates consecutive dropping time; once it exceeds
// cfg.DeadAfterDrop, the listener marks itself dead.
func (l *Listener) recordDrop() {
	l.dropMu.Lock()
	now := time.Now()
	if l.lastDropCheck.IsZero() {
		l.lastDropCheck = now
	} else {
		l.dropStreak += now.Sub(l.lastDropCheck)
		l.lastDropCheck = now
	}
	streak := l.dropStreak
	l.dropMu.Unlock()

	if streak >= l.cfg.DeadAfterDrop {
		l.markDead()
	}
}

func (l *Listener) markDead() {
	l.once.Do(func() {
		close(l.dead)
		l.logger.Info().Msg("listener marked dead after sustained backpressure")
	})
}

// WritePCM feeds n frames of interleaved float32 PCM into this listener's
// encoder. It is called by the Channel's fan-out loop once per frame
// batch. The write to the encoder's stdin has no timeout: if the encoder
// process stops reading and the pipe fills, WritePCM blocks the caller
// until the pipe drains or the write fails.
func (l *Listener) WritePCM(samples []float32) error {
	select {
	case <-l.dead:
		return ErrDropped
	default:
	}

	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(s))
	}

	_, err := l.encStdin.Write(raw)
	if err != nil {
		l.markDead()
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}
	return nil
}

// Read drains one encoded chunk for the HTTP boundary; blocks until a
// chunk is available, the listener dies, or ctx is cancelled.
func (l *Listener) Read(ctx context.Context) ([]byte, error) {
	select {
	case chunk, ok := <-l.queue:
		if ok {
			return chunk, nil
		}
		return nil, io.EOF
	case <-l.dead:
		select {
		case chunk := <-l.queue:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dead reports whether this listener has been marked dead.
func (l *Listener) Dead() <-chan struct{} { return l.dead }

// ID returns the listener's identity.
func (l *Listener) ID() string { return l.id }

// Close terminates the encoder subprocess and releases resources.
// Detaching a listener is immediate; in-flight encoded bytes may be
// discarded (§5 cancellation semantics).
func (l *Listener) Close() error {
	l.markDead()
	if l.cancel != nil {
		l.cancel()
	}
	if l.encStdin != nil {
		_ = l.encStdin.Close()
	}
	if l.encCmd != nil && l.encCmd.Process != nil {
		_ = l.encCmd.Process.Kill()
	}
	return nil
}
