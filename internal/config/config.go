/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config covers process level configuration read from environment
// variables. It loads the audio engine's canonical constants with their
// defaults, but cmd/sonorium and the HTTP server pass on only the sample
// rate, channel count, bitrate, pool size, listener buffer and drop
// timeout, and GStreamer binary. The crossfade windows, file-length
// thresholds, sparse-interval settings, exclusion timings and idle-channel
// timeout are not read by any other package; the engine packages use
// their own built-in values for these.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string

	DBDSN string

	SampleRate  int
	Channels    int
	BitrateBPS  int
	MaxChannels int

	CrossfadeWindowSeconds       float64
	LoopCrossfadeWindowSeconds   float64
	LongFileThresholdSeconds     float64
	ShortFileThresholdSeconds    float64
	SparseMinIntervalSeconds     float64
	SparseMaxIntervalSeconds     float64
	SparseVariance               float64
	MinGapAfterExclusiveSeconds  float64
	InitialExclusiveDelaySeconds float64
	ListenerBufferSeconds        float64
	ListenerDeadAfterDropSeconds float64
	IdleChannelTimeoutSeconds    float64

	GStreamerBin string

	// S3 object storage configuration, for theme media stored remotely.
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3UsePathStyle    bool

	NATSURL string

	JWTSigningKey string
	APIKeyHash    string

	MetricsBind string

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	WebRTCEnabled      bool
	WebRTCRTPBasePort  int
	WebRTCSTUNServer   string
	WebRTCTURNServer   string
	WebRTCTURNUsername string
	WebRTCTURNPassword string
}

// Load reads environment variables, applies defaults, and validates the
// result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SONORIUM_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"SONORIUM_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"SONORIUM_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"SONORIUM_BASE_URL"}, ""),

		DBDSN: getEnvAny([]string{"SONORIUM_DB_DSN"}, "sonorium.db"),

		SampleRate:  getEnvIntAny([]string{"SONORIUM_SAMPLE_RATE"}, 48000),
		Channels:    getEnvIntAny([]string{"SONORIUM_CHANNELS"}, 2),
		BitrateBPS:  getEnvIntAny([]string{"SONORIUM_BITRATE"}, 128000),
		MaxChannels: getEnvIntAny([]string{"SONORIUM_MAX_CHANNELS"}, 6),

		CrossfadeWindowSeconds:       getEnvFloatAny([]string{"SONORIUM_CROSSFADE_WINDOW_S"}, 3.0),
		LoopCrossfadeWindowSeconds:   getEnvFloatAny([]string{"SONORIUM_LOOP_CROSSFADE_WINDOW_S"}, 1.5),
		LongFileThresholdSeconds:     getEnvFloatAny([]string{"SONORIUM_LONG_FILE_THRESHOLD_S"}, 60),
		ShortFileThresholdSeconds:    getEnvFloatAny([]string{"SONORIUM_SHORT_FILE_THRESHOLD_S"}, 10),
		SparseMinIntervalSeconds:     getEnvFloatAny([]string{"SONORIUM_SPARSE_MIN_INTERVAL_S"}, 180),
		SparseMaxIntervalSeconds:     getEnvFloatAny([]string{"SONORIUM_SPARSE_MAX_INTERVAL_S"}, 1800),
		SparseVariance:               getEnvFloatAny([]string{"SONORIUM_SPARSE_VARIANCE"}, 0.30),
		MinGapAfterExclusiveSeconds:  getEnvFloatAny([]string{"SONORIUM_MIN_GAP_AFTER_EXCLUSIVE_S"}, 30),
		InitialExclusiveDelaySeconds: getEnvFloatAny([]string{"SONORIUM_INITIAL_EXCLUSIVE_DELAY_S"}, 60),
		ListenerBufferSeconds:        getEnvFloatAny([]string{"SONORIUM_LISTENER_BUFFER_S"}, 2),
		ListenerDeadAfterDropSeconds: getEnvFloatAny([]string{"SONORIUM_LISTENER_DEAD_AFTER_DROP_S"}, 10),
		IdleChannelTimeoutSeconds:    getEnvFloatAny([]string{"SONORIUM_IDLE_CHANNEL_TIMEOUT_S"}, 30),

		GStreamerBin: getEnvAny([]string{"SONORIUM_GSTREAMER_BIN"}, "gst-launch-1.0"),

		S3AccessKeyID:     getEnvAny([]string{"SONORIUM_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SONORIUM_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SONORIUM_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SONORIUM_S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"SONORIUM_S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SONORIUM_S3_USE_PATH_STYLE"}, false),

		NATSURL: getEnvAny([]string{"SONORIUM_NATS_URL"}, "nats://localhost:4222"),

		JWTSigningKey: getEnvAny([]string{"SONORIUM_JWT_SIGNING_KEY"}, ""),
		APIKeyHash:    getEnvAny([]string{"SONORIUM_API_KEY_HASH"}, ""),

		MetricsBind: getEnvAny([]string{"SONORIUM_METRICS_BIND"}, "127.0.0.1:9090"),

		TracingEnabled:    getEnvBoolAny([]string{"SONORIUM_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SONORIUM_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SONORIUM_TRACING_SAMPLE_RATE"}, 1.0),

		WebRTCEnabled:      getEnvBoolAny([]string{"SONORIUM_WEBRTC_ENABLED"}, false),
		WebRTCRTPBasePort:  getEnvIntAny([]string{"SONORIUM_WEBRTC_RTP_BASE_PORT"}, 15000),
		WebRTCSTUNServer:   getEnvAny([]string{"SONORIUM_WEBRTC_STUN_SERVER"}, "stun:stun.l.google.com:19302"),
		WebRTCTURNServer:   getEnvAny([]string{"SONORIUM_WEBRTC_TURN_SERVER"}, ""),
		WebRTCTURNUsername: getEnvAny([]string{"SONORIUM_WEBRTC_TURN_USERNAME"}, ""),
		WebRTCTURNPassword: getEnvAny([]string{"SONORIUM_WEBRTC_TURN_PASSWORD"}, ""),
	}

	if cfg.MaxChannels < 1 || cfg.MaxChannels > 10 {
		return nil, fmt.Errorf("config: SONORIUM_MAX_CHANNELS %d out of range [1,10]", cfg.MaxChannels)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("config: SONORIUM_SAMPLE_RATE must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("config: SONORIUM_JWT_SIGNING_KEY must be set in production")
		}
	}

	return cfg, nil
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
