/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MediaInfo holds the subset of gst-discoverer-1.0 output the engine needs
// to classify a source file under auto mode resolution (§4.1).
type MediaInfo struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
	Codec      string
}

// Analyzer probes source files via gst-discoverer-1.0. It intentionally
// does not perform loudness analysis or cue-point/tag extraction; the core
// engine only needs duration and sample rate to resolve playback mode.
type Analyzer struct {
	logger zerolog.Logger
}

func NewAnalyzer(logger zerolog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With().Str("component", "analyzer").Logger()}
}

var (
	durationRegex   = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)(?:\.(\d+))?`)
	samplerateRegex = regexp.MustCompile(`sample rate:\s*(\d+)`)
	channelsRegex   = regexp.MustCompile(`channels:\s*(\d+)`)
	codecRegex      = regexp.MustCompile(`(?i)audio:\s*(\w+)`)
)

// Probe runs gst-discoverer-1.0 against path and parses duration, sample
// rate, channel count and codec name out of its verbose output.
func (a *Analyzer) Probe(ctx context.Context, path string) (MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return MediaInfo{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}

	cmd := exec.CommandContext(ctx, "gst-discoverer-1.0", "-v", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return MediaInfo{}, fmt.Errorf("%w: gst-discoverer failed: %v", ErrDecodeFailure, err)
	}

	info := a.parseDiscovererOutput(string(output))
	a.logger.Debug().
		Str("path", path).
		Dur("duration", info.Duration).
		Int("sample_rate", info.SampleRate).
		Msg("media probed")
	return info, nil
}

func (a *Analyzer) parseDiscovererOutput(output string) MediaInfo {
	var info MediaInfo

	if m := durationRegex.FindStringSubmatch(output); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		// gst-discoverer prints fractional seconds with variable precision
		// (often nanoseconds, 9 digits): "Duration: 0:58:12.345000000" means
		// 345ms, not 345000000ms, so the fraction is normalized to 9 digits.
		var nanos int
		if len(m) > 4 && m[4] != "" {
			frac := m[4]
			for len(frac) < 9 {
				frac += "0"
			}
			nanos, _ = strconv.Atoi(frac[:9])
		}
		info.Duration = time.Duration(h)*time.Hour +
			time.Duration(min)*time.Minute +
			time.Duration(s)*time.Second +
			time.Duration(nanos)
	}

	if m := samplerateRegex.FindStringSubmatch(output); m != nil {
		info.SampleRate, _ = strconv.Atoi(m[1])
	}
	if m := channelsRegex.FindStringSubmatch(output); m != nil {
		info.Channels, _ = strconv.Atoi(m[1])
	}
	if m := codecRegex.FindStringSubmatch(output); m != nil {
		info.Codec = strings.ToLower(m[1])
	}

	return info
}
