/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrDecodeFailure is returned (and, per the audio-path error policy,
// never propagated past the Recording Player that owns the failing
// decoder) when a source file cannot be opened or read.
var ErrDecodeFailure = errors.New("mediaengine: decode failure")

// DecodeOpenTimeout is the soft timeout on Decoder.Open before it is
// treated as a decode failure (spec default 5s).
var DecodeOpenTimeout = 5 * time.Second

// Decoder abstracts a streaming source of float32 sample frames at a
// declared sample rate. Two instances may exist per Recording Player at
// once (primary + crossfade arm).
type Decoder interface {
	// Open prepares the decoder to read from path. It must not block
	// past DecodeOpenTimeout.
	Open(ctx context.Context, path string) error
	// ReadFrames fills buf with up to buf.Frames frames and returns how
	// many were actually produced. io.EOF is returned once the source is
	// exhausted.
	ReadFrames(buf Buffer) (int, error)
	// SampleRate returns the decoder's native output rate.
	SampleRate() int
	// Channels returns the decoder's native channel count.
	Channels() int
	// Seek(0) rewinds to the start of the source for looping.
	Seek(frame int64) error
	Close() error
}

// GStreamerBin names the gst-launch-1.0 binary, overridable for test
// environments that stage a fake on PATH.
var GStreamerBin = "gst-launch-1.0"

// gstreamerDecoder shells out to a GStreamer subprocess exactly as the
// teacher's decode helpers do, except the pipeline emits F32LE instead of
// S16LE because the engine mixes entirely in float32.
type gstreamerDecoder struct {
	sampleRate int
	channels   int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	stderr bytes.Buffer

	path string
	eof  bool

	logger zerolog.Logger
}

// NewGStreamerDecoder constructs a Decoder that resamples/reformats
// whatever GStreamer's decodebin recognizes down to F32LE at rate/channels.
func NewGStreamerDecoder(sampleRate, channels int, logger zerolog.Logger) Decoder {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels <= 0 {
		channels = 2
	}
	return &gstreamerDecoder{
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With().Str("component", "gstreamer-decoder").Logger(),
	}
}

func (d *gstreamerDecoder) SampleRate() int { return d.sampleRate }
func (d *gstreamerDecoder) Channels() int   { return d.channels }

func (d *gstreamerDecoder) Open(ctx context.Context, path string) error {
	if d.cmd != nil {
		_ = d.Close()
	}
	d.path = path
	d.eof = false

	openCtx, cancel := context.WithTimeout(ctx, DecodeOpenTimeout)
	defer cancel()

	runCtx, runCancel := context.WithCancel(ctx)

	pipeline := fmt.Sprintf(
		`filesrc location=%q ! decodebin ! audioconvert ! audioresample ! audio/x-raw,format=F32LE,rate=%d,channels=%d ! fdsink fd=1`,
		path, d.sampleRate, d.channels,
	)
	cmd := exec.CommandContext(runCtx, GStreamerBin, "-q", "-e", pipeline)

	d.stderr.Reset()
	cmd.Stderr = &d.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		runCancel()
		return fmt.Errorf("%w: decoder stdout pipe: %v", ErrDecodeFailure, err)
	}

	if err := cmd.Start(); err != nil {
		runCancel()
		return fmt.Errorf("%w: start decoder: %v", ErrDecodeFailure, err)
	}

	select {
	case <-openCtx.Done():
		_ = cmd.Process.Kill()
		runCancel()
		return fmt.Errorf("%w: decoder open timed out: %s", ErrDecodeFailure, path)
	default:
	}

	d.cmd = cmd
	d.stdout = stdout
	d.reader = bufio.NewReaderSize(stdout, 64*1024)
	d.cancel = runCancel

	d.logger.Debug().Str("path", path).Int("pid", cmd.Process.Pid).Msg("decoder opened")
	return nil
}

// ReadFrames reads buf.Frames frames of buf.Channels float32 samples each,
// in little-endian F32LE layout, directly off the subprocess pipe.
func (d *gstreamerDecoder) ReadFrames(buf Buffer) (int, error) {
	if d.cmd == nil {
		return 0, fmt.Errorf("%w: decoder not open", ErrDecodeFailure)
	}
	if d.eof {
		return 0, io.EOF
	}

	bytesPerFrame := 4 * buf.Channels
	raw := make([]byte, buf.Frames*bytesPerFrame)
	n, err := io.ReadFull(d.reader, raw)
	framesRead := n / bytesPerFrame

	for i := 0; i < framesRead*buf.Channels; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		buf.Samples[i] = math.Float32frombits(bits)
	}

	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			d.eof = true
			if framesRead > 0 {
				return framesRead, nil
			}
			return 0, io.EOF
		}
		return framesRead, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return framesRead, nil
}

// Seek only supports rewinding to 0, which is all the Recording Player's
// loop semantics require; it reopens the subprocess against the same path.
func (d *gstreamerDecoder) Seek(frame int64) error {
	if frame != 0 {
		return fmt.Errorf("%w: gstreamer decoder only supports seek(0)", ErrDecodeFailure)
	}
	path := d.path
	ctx := context.Background()
	if d.cancel != nil {
		d.cancel()
	}
	return d.Open(ctx, path)
}

func (d *gstreamerDecoder) Close() error {
	if d.cmd == nil {
		return nil
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.stdout != nil {
		_ = d.stdout.Close()
	}
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
	}
	d.cmd = nil
	return nil
}

func (d *gstreamerDecoder) stderrText() string {
	return strings.TrimSpace(d.stderr.String())
}
