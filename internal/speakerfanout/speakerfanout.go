/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package speakerfanout publishes the §6 "Speaker fan-out contract"
// events ({session_id, action, stream_url, speaker_targets[]}) to NATS for
// downstream DLNA/AirPlay/Chromecast bridges to consume. The engine does
// not track delivery success; this publisher is fire-and-forget, matching
// the teacher's own NATS event bus's non-blocking publish semantics.
package speakerfanout

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config configures the NATS connection used for fan-out.
type Config struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig mirrors the teacher's NATS defaults, scoped to Sonorium's
// own subject namespace.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "sonorium.speaker.fanout",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Event is the speaker fan-out notification the Session Controller emits
// on every play/stop (§6).
type Event struct {
	SessionID      string   `json:"session_id"`
	Action         string   `json:"action"` // "play" | "stop"
	StreamURL      string   `json:"stream_url"`
	SpeakerTargets []string `json:"speaker_targets"`
}

// Publisher is a thin, fire-and-forget wrapper over a NATS connection.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// Connect dials NATS. If the broker is unreachable, Connect still returns
// a Publisher whose Publish calls are logged-and-dropped no-ops — speaker
// fan-out delivery is explicitly best-effort per spec.md §6, so a broker
// outage must never block session play/stop.
func Connect(cfg Config, logger zerolog.Logger) *Publisher {
	logger = logger.With().Str("component", "speaker-fanout").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("nats connect failed, speaker fanout degraded to no-op")
		return &Publisher{subject: cfg.Subject, logger: logger}
	}

	return &Publisher{conn: conn, subject: cfg.Subject, logger: logger}
}

// Publish fires a speaker fan-out event. Errors are logged, never
// returned: the engine does not track speaker delivery success (§6).
func (p *Publisher) Publish(ev Event) {
	if p.conn == nil {
		p.logger.Debug().Str("session_id", ev.SessionID).Msg("nats unavailable, speaker fanout dropped")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn().Err(err).Msg("marshal speaker fanout event")
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn().Err(err).Msg("publish speaker fanout event")
	}
}

// Close closes the NATS connection with nats.Conn.Close (it does not
// Drain). It is a no-op when Connect fell back to the no-op Publisher.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	p.conn.Close()
	return nil
}
